package ua

import (
	re2 "github.com/dlclark/regexp2"
)

type rule struct {
	re   *re2.Regexp
	name string
	// version is the capture group holding the version, 0 for none.
	version int
}

func compile(pattern, name string, version int) rule {
	return rule{re: re2.MustCompile(pattern, re2.IgnoreCase), name: name, version: version}
}

// match returns the first rule matching s in order.
func match(rules []rule, s string) (name, version string, ok bool) {
	for _, r := range rules {
		m, err := r.re.FindStringMatch(s)
		if err != nil || m == nil {
			continue
		}
		if r.version > 0 {
			if g := m.GroupByNumber(r.version); g != nil {
				version = g.String()
			}
		}
		return r.name, version, true
	}
	return "", "", false
}

// bots matches crawler and monitor tokens. "bot" must end a word and not be
// the Cubot phone brand.
var bots = re2.MustCompile(`(?<!cu)bot\b|crawl|spider|slurp|curl/|wget/|python-requests|go-http-client|headless|lighthouse|pingdom|uptimerobot|uptime-kuma|facebookexternalhit|bingpreview|google web preview|skypeuripreview|google-pagerenderer`, re2.IgnoreCase)

// Order matters: embedded engines claim the names of the browsers they are
// built on.
var browsers = []rule{
	compile(`(?:Edg|Edge|EdgA|EdgiOS)/(\d+[\.\d]*)`, "Edge", 1),
	compile(`(?:OPR|Opera|OPiOS)/(\d+[\.\d]*)`, "Opera", 1),
	compile(`SamsungBrowser/(\d+[\.\d]*)`, "Samsung Internet", 1),
	compile(`YaBrowser/(\d+[\.\d]*)`, "Yandex Browser", 1),
	compile(`Vivaldi/(\d+[\.\d]*)`, "Vivaldi", 1),
	compile(`UCBrowser/(\d+[\.\d]*)`, "UC Browser", 1),
	compile(`(?:Firefox|FxiOS)/(\d+[\.\d]*)`, "Firefox", 1),
	compile(`(?:Chrome|CriOS)/(\d+[\.\d]*)`, "Chrome", 1),
	compile(`Version/(\d+[\.\d]*).*Safari/`, "Safari", 1),
	compile(`(?:MSIE |Trident/.*rv:)(\d+[\.\d]*)`, "Internet Explorer", 1),
}

var systems = []rule{
	compile(`Windows NT (\d+\.\d+)`, "Windows", 1),
	compile(`(?:iPhone|iPad|iPod).*?OS (\d+[_\d]*)`, "iOS", 1),
	compile(`Mac OS X (\d+[_\.\d]*)`, "Mac", 1),
	compile(`Android (\d+[\.\d]*)`, "Android", 1),
	compile(`CrOS`, "Chrome OS", 0),
	compile(`Ubuntu`, "Ubuntu", 0),
	compile(`Linux`, "GNU/Linux", 0),
}

var devices = []rule{
	compile(`iPad|Tablet|Tab(?!le)|Kindle|Silk|PlayBook|Nexus (?:7|9|10)|SM-T\d+|Android(?!.*Mobile)`, "Tablet", 0),
	compile(`Mobi|iPhone|iPod|Android.*Mobile|Windows Phone|BlackBerry|Opera Mini`, "Mobile", 0),
	compile(`SmartTV|SMART-TV|BRAVIA|AppleTV|GoogleTV|HbbTV|PlayStation|Xbox|Nintendo`, "Desktop", 0),
}
