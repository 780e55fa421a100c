package evidence

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ternarybob/arbor"

	"equityintel/internal/common"
	"equityintel/internal/httpclient"
	"equityintel/internal/interfaces"
	"equityintel/internal/models"
)

// Extractor turns a queue entry's sources seed into evidence. It is
// deliberately total: every failure degrades to weaker evidence or to
// the filing's own metadata, never to an error. The caller reads the
// absence of substantive text or facts as a gap, not as a crash.
type Extractor struct {
	downloader     interfaces.FilingDownloader
	webClient      *http.Client
	webPolicy      httpclient.RetryPolicy
	fileTypes      []int
	fullTextLimit  int
	irTextLimit    int
	maxItems       int
	maxXBRLFacts   int
	whitelist      map[string]bool
	companyIRPages map[string][]string
	logger         arbor.ILogger
}

// NewExtractor builds an evidence extractor from config.
func NewExtractor(config *common.EvidenceConfig, downloader interfaces.FilingDownloader, logger arbor.ILogger) (*Extractor, error) {
	timeout, err := time.ParseDuration(config.RequestTimeout)
	if err != nil {
		return nil, fmt.Errorf("invalid evidence request timeout %q: %w", config.RequestTimeout, err)
	}

	fileTypes := make([]int, 0, len(config.FileTypes))
	for _, t := range config.FileTypes {
		if t > 0 {
			fileTypes = append(fileTypes, t)
		}
	}
	if len(fileTypes) == 0 {
		fileTypes = []int{5}
	}

	whitelist := make(map[string]bool, len(config.WhitelistDomains))
	for _, d := range config.WhitelistDomains {
		whitelist[strings.ToLower(d)] = true
	}

	fullTextLimit := config.FullTextLimit
	if fullTextLimit < 1200 {
		fullTextLimit = 1200
	}
	irTextLimit := config.IRFullTextLimit
	if irTextLimit < 800 {
		irTextLimit = 800
	}

	return &Extractor{
		downloader:     downloader,
		webClient:      httpclient.NewDefaultHTTPClient(timeout),
		webPolicy:      httpclient.NewDefaultRetryPolicy(),
		fileTypes:      fileTypes,
		fullTextLimit:  fullTextLimit,
		irTextLimit:    irTextLimit,
		maxItems:       config.MaxItemsPerSymbol,
		maxXBRLFacts:   config.MaxXBRLFacts,
		whitelist:      whitelist,
		companyIRPages: config.CompanyIRPages,
		logger:         logger,
	}, nil
}

// Fetch collects evidence for one candidate: first its seeded filings,
// then any configured IR pages, capped at the per-symbol limit.
func (e *Extractor) Fetch(ctx context.Context, code string, businessDate string, seed models.SourcesSeed) []models.EvidenceSource {
	var items []models.EvidenceSource

	for _, filing := range seed.Filings {
		if filing.FilingID == "" {
			continue
		}
		if !e.domainAllowed(e.downloader.DocumentURL(filing.FilingID, e.fileTypes[0])) {
			continue
		}
		items = append(items, e.extractFiling(ctx, code, filing))
		if e.maxItems > 0 && len(items) >= e.maxItems {
			return items
		}
	}

	irPages := seed.IRPages
	if len(irPages) == 0 {
		irPages = e.companyIRPages[code]
	}
	for _, pageURL := range irPages {
		if !e.domainAllowed(pageURL) {
			continue
		}
		fullText := fetchPageText(ctx, e.webClient, pageURL, e.webPolicy, e.irTextLimit)
		if fullText == "" {
			e.logger.Debug().Str("code", code).Str("url", pageURL).Msg("IR page fetch yielded nothing")
			continue
		}
		items = append(items, models.EvidenceSource{
			Code:         code,
			SourceURL:    pageURL,
			SourceType:   "company_ir",
			Headline:     fmt.Sprintf("%s IR page", code),
			PublishedAt:  businessDate,
			Snippet:      safeText(fullText, 600),
			FullText:     fullText,
			EvidenceRefs: []string{pageURL},
		})
		if e.maxItems > 0 && len(items) >= e.maxItems {
			break
		}
	}
	return items
}

// extractFiling walks the file-type variants in preference order until
// one yields substantive text or structured facts. The evidence URL
// always reflects the variant that actually succeeded.
func (e *Extractor) extractFiling(ctx context.Context, code string, filing models.FilingRef) models.EvidenceSource {
	headline := filing.Description
	if headline == "" {
		headline = "regulatory filing"
	}

	usedFileType := e.fileTypes[0]
	snippet := safeText(headline, 600)
	fullText := safeText(headline, e.fullTextLimit)
	var xbrlFacts []string
	extracted := false

	for _, fileType := range e.fileTypes {
		payload, err := e.downloader.Download(ctx, filing.FilingID, fileType)
		if err != nil {
			e.logger.Warn().
				Str("code", code).
				Str("filing_id", filing.FilingID).
				Int("file_type", fileType).
				Err(err).
				Msg("Filing download error")
			continue
		}
		if len(payload) == 0 {
			e.logger.Info().
				Str("code", code).
				Str("filing_id", filing.FilingID).
				Int("file_type", fileType).
				Msg("Filing payload empty")
			continue
		}
		if !expectedPayloadMagic(payload, fileType) {
			head := payload
			if len(head) > 1200 {
				head = head[:1200]
			}
			e.logger.Warn().
				Str("code", code).
				Str("filing_id", filing.FilingID).
				Int("file_type", fileType).
				Str("magic", fmt.Sprintf("%x", payload[:min(8, len(payload))])).
				Bool("looks_error", looksLikeAPIErrorPayload(payload)).
				Str("head", safeText(decodeBytes(head), 180)).
				Msg("Filing payload signature mismatch")
			continue
		}

		scanTarget := e.fullTextLimit * 2
		if scanTarget < 2400 {
			scanTarget = 2400
		}
		if scanTarget > 30000 {
			scanTarget = 30000
		}
		candidateFullText := extractArchiveText(payload, headline, e.fullTextLimit, scanTarget)
		candidateSnippet := safeText(candidateFullText, 600)
		candidateFacts := ExtractXBRLKeyFacts(payload, e.maxXBRLFacts)

		snippetOK := hasSubstantiveSnippet(candidateSnippet, headline)
		factsOK := len(candidateFacts) > 0
		e.logger.Info().
			Str("code", code).
			Str("filing_id", filing.FilingID).
			Int("file_type", fileType).
			Bool("snippet_ok", snippetOK).
			Bool("facts_ok", factsOK).
			Msg("Filing extraction attempt")
		if !snippetOK && !factsOK {
			continue
		}

		snippet = candidateSnippet
		fullText = candidateFullText
		xbrlFacts = candidateFacts
		usedFileType = fileType
		extracted = true
		break
	}

	if len(xbrlFacts) > 0 {
		snippet = safeText(fmt.Sprintf("%s XBRL key facts: %s", snippet, strings.Join(xbrlFacts, " / ")), 700)
	}
	if !extracted {
		e.logger.Warn().
			Str("code", code).
			Str("filing_id", filing.FilingID).
			Msg("Filing text extraction fell back to description metadata")
	}

	finalURL := e.downloader.DocumentURL(filing.FilingID, usedFileType)
	return models.EvidenceSource{
		Code:         code,
		SourceURL:    finalURL,
		SourceType:   "filing",
		Headline:     headline,
		PublishedAt:  filing.SubmitTime,
		Snippet:      snippet,
		FullText:     fullText,
		Facts:        xbrlFacts,
		EvidenceRefs: []string{finalURL},
	}
}

// domainAllowed applies the whitelist. An empty whitelist allows all.
func (e *Extractor) domainAllowed(rawURL string) bool {
	if len(e.whitelist) == 0 {
		return true
	}
	domain := domainOf(rawURL)
	if domain == "" {
		return true
	}
	return e.whitelist[domain]
}
