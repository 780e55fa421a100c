package evidence

import (
	"archive/zip"
	"bytes"
	"sort"
	"strings"
)

// Filing archives bundle an XBRL instance, taxonomy files and a
// human-readable "PublicDoc" folder. Text extraction walks entries in a
// preference order that surfaces the readable content first and leaves
// the taxonomy noise last.

const maxEntryBytes = 300_000

// extractArchiveText pulls readable text out of a filing payload.
// Returns the fallback headline when nothing usable comes out.
func extractArchiveText(payload []byte, fallbackHeadline string, limit, scanTarget int) string {
	if len(payload) == 0 {
		return safeText(fallbackHeadline, limit)
	}

	if bytes.HasPrefix(payload, []byte("PK")) {
		if text := extractZipText(payload, limit, scanTarget); text != "" {
			return text
		}
	}

	head := payload
	if len(head) > maxEntryBytes {
		head = head[:maxEntryBytes]
	}
	plain := decodeBytes(head)
	if strings.Contains(plain, "<") && strings.Contains(plain, ">") {
		plain = stripMarkup(plain)
	}
	if cleaned := safeText(plain, limit); cleaned != "" {
		return cleaned
	}
	return safeText(fallbackHeadline, limit)
}

func extractZipText(payload []byte, limit, scanTarget int) string {
	reader, err := zip.NewReader(bytes.NewReader(payload), int64(len(payload)))
	if err != nil {
		return ""
	}

	perFileLimit := scanTarget
	if perFileLimit < 1200 {
		perFileLimit = 1200
	}
	if perFileLimit > 30000 {
		perFileLimit = 30000
	}

	files := make([]*zip.File, len(reader.File))
	copy(files, reader.File)
	sort.Slice(files, func(i, j int) bool {
		return entryLess(files[i].Name, files[j].Name)
	})

	var chunks []string
	total := 0
	for _, f := range files {
		lowered := strings.ToLower(f.Name)
		if !hasTextExtension(lowered) {
			continue
		}
		raw := readZipEntry(f)
		if len(raw) == 0 {
			continue
		}
		if len(raw) > maxEntryBytes {
			raw = raw[:maxEntryBytes]
		}
		text := decodeBytes(raw)
		var cleaned string
		if strings.Contains(text, "<") && strings.Contains(text, ">") {
			cleaned = stripMarkup(text)
		} else {
			cleaned = safeText(text, perFileLimit)
		}
		if looksLikeErrorText(cleaned) {
			continue
		}
		if cleaned != "" {
			chunks = append(chunks, cleaned)
			total += len(cleaned)
		}
		if total >= scanTarget {
			break
		}
	}
	if len(chunks) == 0 {
		return ""
	}
	return safeText(strings.Join(chunks, " "), limit)
}

func readZipEntry(f *zip.File) []byte {
	rc, err := f.Open()
	if err != nil {
		return nil
	}
	defer rc.Close()

	buf := make([]byte, 0, 4096)
	tmp := make([]byte, 8192)
	for len(buf) < maxEntryBytes {
		n, err := rc.Read(tmp)
		if n > 0 {
			buf = append(buf, tmp[:n]...)
		}
		if err != nil {
			break
		}
	}
	return buf
}

// entryLess orders archive entries: public-document folder first, then
// by extension preference, taxonomy support files last, name as the
// final tie-break.
func entryLess(a, b string) bool {
	ka := entryKey(a)
	kb := entryKey(b)
	if ka != kb {
		return ka < kb
	}
	return strings.ToLower(a) < strings.ToLower(b)
}

func entryKey(name string) string {
	n := strings.ToLower(name)

	folder := byte('1')
	if strings.Contains(n, "publicdoc") {
		folder = '0'
	}

	ext := byte('9')
	switch {
	case strings.HasSuffix(n, ".htm"), strings.HasSuffix(n, ".html"), strings.HasSuffix(n, ".xhtml"):
		ext = '0'
	case strings.HasSuffix(n, ".txt"):
		ext = '1'
	case strings.HasSuffix(n, ".csv"):
		ext = '2'
	case strings.HasSuffix(n, ".xml"):
		ext = '3'
	}

	taxonomy := byte('0')
	for _, tag := range []string{"_lab", "_pre", "_cal", "_def", ".xsd"} {
		if strings.Contains(n, tag) {
			taxonomy = '1'
			break
		}
	}

	return string([]byte{folder, ext, taxonomy})
}

func hasTextExtension(lowered string) bool {
	for _, ext := range []string{".htm", ".html", ".xhtml", ".xml", ".txt", ".csv"} {
		if strings.HasSuffix(lowered, ext) {
			return true
		}
	}
	return false
}
