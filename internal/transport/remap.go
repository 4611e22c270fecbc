package transport

import (
	"fmt"
	"net/url"
	"strings"
)

// RemapTrackerURL rewrites an issue-tracker browse URL into the URL of
// its machine-readable view. URLs that are not recognized are returned
// unchanged and downloaded as-is.
//
// Known remappings:
//   - Jira browse page -> issue XML view
//   - GitHub issue page -> REST API issue resource
//   - Bugzilla show_bug.cgi -> same with ctype=xml
//   - SourceForge bug page -> REST API resource
//   - Google Code archive JSON and GitHub timeline URLs pass through
func RemapTrackerURL(uri, trackerBaseURL string) string {
	baseJira := ""
	switch {
	case trackerBaseURL != "" && strings.Contains(strings.ToLower(trackerBaseURL), "jira") && strings.Contains(uri, trackerBaseURL):
		baseJira = strings.TrimRight(trackerBaseURL, "/") + "/"
	case strings.Contains(uri, "issues.apache.org/jira/"):
		baseJira = "https://issues.apache.org/jira/"
	}

	switch {
	case baseJira != "":
		key := uri[strings.LastIndex(uri, "/")+1:]
		if i := strings.IndexByte(key, '?'); i >= 0 {
			key = key[:i]
		}
		return fmt.Sprintf("%ssi/jira.issueviews:issue-xml/%s/%s.xml", baseJira, key, key)

	case strings.Contains(uri, "github.com/") && strings.Contains(uri, "/issues/") && !strings.Contains(uri, "api.github.com"):
		u, err := url.Parse(uri)
		if err != nil {
			return uri
		}
		parts := strings.Split(u.Path, "/")
		if len(parts) >= 5 {
			return fmt.Sprintf("https://api.github.com/repos/%s/%s/issues/%s", parts[1], parts[2], parts[4])
		}
		return uri

	case strings.Contains(uri, "bugzilla") && strings.Contains(uri, "show_bug.cgi?id="):
		u, err := url.Parse(uri)
		if err != nil {
			return uri
		}
		u.RawQuery = "ctype=xml&" + u.RawQuery
		return u.String()

	case strings.Contains(uri, "sourceforge.net/p/") && strings.Contains(uri, "/bugs/"):
		remapped := strings.Replace(uri, "/p/", "/rest/p/", 1)
		if !strings.HasSuffix(remapped, "/") {
			remapped += "/"
		}
		return remapped
	}

	return uri
}
