package ioc

import (
	"net/netip"
	"net/url"
	"regexp"
	"strings"

	"prism/internal/domain"
)

// Defang tokens accepted in place of '.' and '@'.
const (
	dot = `(?:\.|\[\.\]|\(\.\)|\{\.\}|\[dot\]|\(dot\)|\{dot\})`
	at  = `(?:@|\[@\]|\(@\)|\[at\]|\(at\))`
)

// Pattern is one typed matcher. Normalize returns the canonical value and
// false when the candidate fails validation.
type Pattern struct {
	Type      domain.IOCType
	Regex     *regexp.Regexp
	Normalize func(raw string) (string, bool)
}

// Match is a raw pattern hit with its byte span in the input.
type Match struct {
	Raw        string
	Start, End int
}

// Find returns every non-overlapping hit of the pattern, left to right.
func (p Pattern) Find(text string) []Match {
	locs := p.Regex.FindAllStringIndex(text, -1)
	matches := make([]Match, 0, len(locs))
	for _, loc := range locs {
		matches = append(matches, Match{Raw: text[loc[0]:loc[1]], Start: loc[0], End: loc[1]})
	}
	return matches
}

// Precedence lists the patterns most-specific first. When two patterns hit
// overlapping spans the earlier one wins, unless the later hit strictly
// contains every span it overlaps: a URL carrying a hash keeps both.
var Precedence = []Pattern{
	{domain.IOCHashSHA256, regexp.MustCompile(`(?i)\b[a-f0-9]{64}\b`), hexOfLen(64)},
	{domain.IOCHashSHA1, regexp.MustCompile(`(?i)\b[a-f0-9]{40}\b`), hexOfLen(40)},
	{domain.IOCHashMD5, regexp.MustCompile(`(?i)\b[a-f0-9]{32}\b`), hexOfLen(32)},
	{domain.IOCCVE, regexp.MustCompile(`(?i)\bCVE-\d{4}-\d{4,7}\b`), normalizeCVE},
	{domain.IOCYaraRule, regexp.MustCompile(`\b(?:(?:private|global)\s+)*rule\s+[A-Za-z_][A-Za-z0-9_]{0,127}(?:\s*:[ \t]*[A-Za-z0-9_]+(?:[ \t]+[A-Za-z0-9_]+)*)?\s*\{`), normalizeYaraRule},
	{domain.IOCUserAgent, regexp.MustCompile(`\bMozilla/\d+(?:\.\d+)*[ \t]+\([^()\n]+\)(?:[ \t]+(?:[A-Za-z0-9_.!-]+/[A-Za-z0-9_.+-]+|\([^()\n]+\)))*`), normalizeUserAgent},
	{domain.IOCEmail, regexp.MustCompile(`(?i)\b[a-z0-9._%+-]+` + at + `(?:[a-z0-9-]+` + dot + `)+[a-z]{2,63}\b`), normalizeEmail},
	{domain.IOCURL, regexp.MustCompile(`(?i)\b(?:h[tx]{2}ps?|f[tx]p)(?:://|\[://\]|\[:\]//)[^\s<>"'` + "`" + `]+`), normalizeURL},
	{domain.IOCEthAddress, regexp.MustCompile(`\b0x[a-fA-F0-9]{40}\b`), normalizeLower},
	{domain.IOCBTCAddress, regexp.MustCompile(`\b(?:[13][a-km-zA-HJ-NP-Z1-9]{25,34}|bc1[a-z0-9]{25,39})\b`), keep},
	{domain.IOCRegistryKey, regexp.MustCompile(`\b(?:HKEY_[A-Z_]+|HKLM|HKCU|HKCR|HKU)(?:\\[A-Za-z0-9_.{}-]+)+`), normalizeRegistry},
	{domain.IOCFilePath, regexp.MustCompile(`\b[A-Za-z]:\\(?:[^\\/:*?"<>|\s]+\\)*[^\\/:*?"<>|\s]+|\B/(?:tmp|var|etc|usr|opt|home|root|bin|sbin|lib|lib64|dev/shm|proc|Users|Library|Applications|System)(?:/[\w.+-]+)+`), normalizeFilePath},
	{domain.IOCMitreTechnique, regexp.MustCompile(`\bT\d{4}(?:\.\d{3})?\b`), keep},
	{domain.IOCIP, regexp.MustCompile(`(?i)\b(?:\d{1,3}` + dot + `){3}\d{1,3}\b`), normalizeIP},
	{domain.IOCDomain, regexp.MustCompile(`(?i)\b(?:[a-z0-9](?:[a-z0-9-]{0,61}[a-z0-9])?` + dot + `)+[a-z]{2,63}\b`), normalizeDomain},
}

var refanger = strings.NewReplacer(
	"[.]", ".", "(.)", ".", "{.}", ".",
	"[dot]", ".", "(dot)", ".", "{dot}", ".",
	"[@]", "@", "(@)", "@", "[at]", "@", "(at)", "@",
	"[://]", "://", "[:]", ":",
)

var schemeRefang = strings.NewReplacer("hxxps", "https", "hxxp", "http", "fxp", "ftp")

// Refang reverses the defanging conventions handled by the patterns.
func Refang(s string) string {
	return refanger.Replace(strings.ToLower(s))
}

func keep(raw string) (string, bool) {
	return raw, true
}

func normalizeRegistry(raw string) (string, bool) {
	v := strings.TrimRight(raw, ".")
	return v, strings.Contains(v, `\`)
}

// normalizeYaraRule reduces a rule header to the rule name.
func normalizeYaraRule(raw string) (string, bool) {
	fields := strings.Fields(strings.NewReplacer("{", " ", ":", " ").Replace(raw))
	for i, f := range fields {
		if f == "rule" && i+1 < len(fields) {
			return fields[i+1], true
		}
	}
	return "", false
}

func normalizeUserAgent(raw string) (string, bool) {
	v := strings.TrimRight(strings.Join(strings.Fields(raw), " "), ".,;")
	return v, strings.Contains(v, "(")
}

// normalizeFilePath trims trailing punctuation and requires a named entry
// below the root.
func normalizeFilePath(raw string) (string, bool) {
	v := strings.TrimRight(raw, ".,;:!?'\")]}")
	if strings.HasSuffix(v, "/") || strings.HasSuffix(v, `\`) {
		return "", false
	}
	if len(v) > 1 && v[1] == ':' {
		return v, len(v) > 3
	}
	return v, strings.Count(v, "/") >= 2
}

func normalizeLower(raw string) (string, bool) {
	return strings.ToLower(raw), true
}

func hexOfLen(n int) func(string) (string, bool) {
	return func(raw string) (string, bool) {
		v := strings.ToLower(raw)
		if len(v) != n {
			return "", false
		}
		for _, c := range v {
			if !(c >= '0' && c <= '9' || c >= 'a' && c <= 'f') {
				return "", false
			}
		}
		return v, true
	}
}

func normalizeCVE(raw string) (string, bool) {
	return strings.ToUpper(raw), true
}

func normalizeEmail(raw string) (string, bool) {
	v := Refang(raw)
	local, host, ok := strings.Cut(v, "@")
	if !ok || local == "" || strings.Contains(host, "@") {
		return "", false
	}
	if _, ok := normalizeDomain(host); !ok {
		return "", false
	}
	return v, true
}

func normalizeURL(raw string) (string, bool) {
	v := refanger.Replace(raw)
	if i := strings.Index(v, "://"); i > 0 {
		v = schemeRefang.Replace(strings.ToLower(v[:i])) + v[i:]
	}
	v = strings.TrimRight(v, ".,;:!?'\")]}")

	u, err := url.Parse(v)
	if err != nil || u.Host == "" {
		return "", false
	}
	switch u.Scheme {
	case "http", "https", "ftp":
	default:
		return "", false
	}
	u.Host = strings.ToLower(u.Host)
	return u.String(), true
}

func normalizeIP(raw string) (string, bool) {
	addr, err := netip.ParseAddr(Refang(raw))
	if err != nil || !addr.Is4() {
		return "", false
	}
	return addr.String(), true
}

func normalizeDomain(raw string) (string, bool) {
	v := strings.TrimSuffix(Refang(raw), ".")
	labels := strings.Split(v, ".")
	if len(labels) < 2 || len(v) > 253 {
		return "", false
	}
	for _, l := range labels {
		if l == "" || len(l) > 63 || strings.HasPrefix(l, "-") || strings.HasSuffix(l, "-") {
			return "", false
		}
	}
	if _, isFile := fileExtensions[labels[len(labels)-1]]; isFile {
		return "", false
	}
	return v, true
}

// fileExtensions are final labels that look like TLDs but are almost always
// file names in threat reports.
var fileExtensions = toSet(
	"exe", "dll", "sys", "bat", "cmd", "ps1", "vbs", "js", "jse", "hta", "lnk", "scr",
	"zip", "rar", "7z", "gz", "tar", "iso", "img", "msi", "jar", "apk", "elf", "so", "bin", "dat", "tmp",
	"doc", "docx", "docm", "xls", "xlsx", "xlsm", "ppt", "pptx", "pdf", "rtf", "txt", "log", "csv",
	"php", "asp", "aspx", "jsp", "html", "htm", "json", "xml", "yml", "yaml", "cfg", "ini", "conf",
	"png", "jpg", "jpeg", "gif", "svg", "py", "sh", "pl", "rb", "cpp",
)

func toSet(values ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}
