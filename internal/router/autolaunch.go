// internal/router/autolaunch.go
package router

import (
	"regexp"
	"strings"

	"golang.org/x/net/publicsuffix"

	"github.com/xkilldash9x/pilot/api/schemas"
)

const trailingPunctuation = ".,;:!?)]"

var (
	emailPattern  = regexp.MustCompile(`[\w.%+\-]+@[\w\-]+(?:\.[\w\-]+)+`)
	schemePattern = regexp.MustCompile(`(?i)\bhttps?://[^\s<>"']+`)
	// Candidate hosts start at a word boundary that is not part of a path or
	// an address. Whether the last label is a real TLD is decided by the
	// public suffix list, not the pattern.
	domainPattern = regexp.MustCompile(`(?i)(?:^|[\s(\[])((?:[a-z0-9](?:[a-z0-9\-]*[a-z0-9])?\.)+[a-z]{2,24})(/[^\s<>"']*)?(?:$|[\s)\],;!?.])`)
)

// autoLaunchTarget picks the address a browser directive implicitly refers
// to, for when it arrives before any launch. An explicit url field wins;
// otherwise the first URL or bare domain in the text is used. Anything inside
// an e-mail address is ignored, and so are file names like report.txt whose
// extension is not an ICANN suffix.
func autoLaunchTarget(d schemas.ActionDirective) string {
	if url := strings.TrimSpace(d.URL); url != "" {
		return url
	}
	text := emailPattern.ReplaceAllString(d.Text, " ")
	if m := schemePattern.FindString(text); m != "" {
		return strings.TrimRight(m, trailingPunctuation)
	}

	// Matches consume their leading delimiter, so a rejected candidate
	// resumes the search right after its host instead of after the match.
	for offset := 0; offset < len(text); {
		loc := domainPattern.FindStringSubmatchIndex(text[offset:])
		if loc == nil {
			break
		}
		host := text[offset+loc[2] : offset+loc[3]]
		if isRegisteredDomain(host) {
			target := host
			if loc[4] >= 0 {
				target += text[offset+loc[4] : offset+loc[5]]
			}
			return strings.TrimRight(target, trailingPunctuation)
		}
		offset += loc[3]
	}
	return ""
}

// isRegisteredDomain reports whether host sits under an ICANN-managed public
// suffix and names something below it.
func isRegisteredDomain(host string) bool {
	host = strings.ToLower(host)
	suffix, icann := publicsuffix.PublicSuffix(host)
	return icann && suffix != host
}
