package sabot

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"path"
	"strconv"
	"strings"
)

var mediaExts = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true, ".webp": true,
	".mp4": true, ".mov": true, ".webm": true, ".m4v": true, ".mkv": true,
}

// SanitizeComponent makes s safe to use as a single path component.
func SanitizeComponent(s string) string {
	s = strings.TrimSpace(s)
	s = strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', 0:
			return '_'
		}
		return r
	}, s)
	if s == "" || s == "." || s == ".." {
		return "_"
	}
	return s
}

// MediaFilename returns the destination filename for a media ref:
//
//	<prefix>_<content_id>_<index>_<token><ext>
//
// index is the ref's position within the item and token is derived from the
// ref URL without its query string, so the same ref maps to the same file on
// every run and refs of one item never share a file.
func MediaFilename(platform Platform, contentID string, index int, ref MediaRef) string {
	return platform.Prefix() + "_" + SanitizeComponent(contentID) + "_" +
		strconv.Itoa(index) + "_" + urlToken(ref.URL) + mediaExt(ref)
}

func urlToken(raw string) string {
	key := raw
	if u, err := url.Parse(raw); err == nil && u.Host != "" {
		key = u.Scheme + "://" + u.Host + u.Path
	}
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:4])
}

func mediaExt(ref MediaRef) string {
	p := ref.URL
	if u, err := url.Parse(ref.URL); err == nil {
		p = u.Path
	}
	ext := strings.ToLower(path.Ext(p))
	if ref.AudioURL == "" && mediaExts[ext] {
		if ext == ".jpeg" {
			return ".jpg"
		}
		return ext
	}
	return ref.Kind.DefaultExt()
}

// AccountVariants returns the spellings under which an account may have
// been stored: the name as given, without a leading '@', lowercased, and
// with '.' and '_' swapped. The first element is always the input.
func AccountVariants(account string) []string {
	var out []string
	seen := make(map[string]bool)
	add := func(s string) {
		if s != "" && !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}

	add(account)
	base := []string{account}
	if trimmed := strings.TrimPrefix(account, "@"); trimmed != account {
		base = append(base, trimmed)
	}
	for _, b := range base {
		add(b)
		add(strings.ToLower(b))
	}
	for _, v := range append([]string(nil), out...) {
		add(strings.ReplaceAll(v, ".", "_"))
		add(strings.ReplaceAll(v, "_", "."))
	}
	if len(out) == 0 {
		return []string{account}
	}
	return out
}
