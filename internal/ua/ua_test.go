package ua

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	cases := []struct {
		name  string
		agent string
		want  Agent
	}{
		{
			name:  "chrome on windows",
			agent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			want:  Agent{Device: "Desktop", Browser: "Chrome", BrowserVersion: "120.0.0.0", OS: "Windows", OSVersion: "10.0"},
		},
		{
			name:  "edge",
			agent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36 Edg/120.0.2210.91",
			want:  Agent{Device: "Desktop", Browser: "Edge", BrowserVersion: "120.0.2210.91", OS: "Windows", OSVersion: "10.0"},
		},
		{
			name:  "safari on iphone",
			agent: "Mozilla/5.0 (iPhone; CPU iPhone OS 17_2 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.2 Mobile/15E148 Safari/604.1",
			want:  Agent{Device: "Mobile", Browser: "Safari", BrowserVersion: "17.2", OS: "iOS", OSVersion: "17.2"},
		},
		{
			name:  "firefox on linux",
			agent: "Mozilla/5.0 (X11; Linux x86_64; rv:121.0) Gecko/20100101 Firefox/121.0",
			want:  Agent{Device: "Desktop", Browser: "Firefox", BrowserVersion: "121.0", OS: "GNU/Linux"},
		},
		{
			name:  "android phone",
			agent: "Mozilla/5.0 (Linux; Android 14; Pixel 8) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.6099.144 Mobile Safari/537.36",
			want:  Agent{Device: "Mobile", Browser: "Chrome", BrowserVersion: "120.0.6099.144", OS: "Android", OSVersion: "14"},
		},
		{
			name:  "bot",
			agent: "Mozilla/5.0 (compatible; Googlebot/2.1; +http://www.google.com/bot.html)",
			want:  Agent{Bot: true},
		},
		{
			name:  "garbage",
			agent: "1234",
			want:  Agent{},
		},
	}
	p := New(1 << 20)
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			require.Equal(t, c.want, Parse(c.agent))
			// second call is served from the cache
			require.Equal(t, c.want, p.Parse(c.agent))
			require.Equal(t, c.want, p.Parse(c.agent))
		})
	}
}

func TestBots(t *testing.T) {
	cases := []struct {
		agent string
		bot   bool
	}{
		{"Mozilla/5.0 (compatible; bingbot/2.0; +http://www.bing.com/bingbot.htm)", true},
		{"Mozilla/5.0 AppleWebKit/537.36 (KHTML, like Gecko; compatible; Slackbot-LinkExpanding 1.0)", true},
		{"Mozilla/5.0 (compatible; UptimeRobot/2.0; http://www.uptimerobot.com/)", true},
		{"Mozilla/5.0 (Windows NT 6.1; WOW64) AppleWebKit/534+ (KHTML, like Gecko) BingPreview/1.0b", true},
		{"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) HeadlessChrome/120.0.0.0 Safari/537.36", true},
		{"Mozilla/5.0 (Linux; Android 12; CUBOT NOTE 20) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Mobile Safari/537.36", false},
		{"Mozilla/5.0 (Macintosh; Intel Mac OS X 14_2) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36 PreviewPane/3.1", false},
		{"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36 UptimeWidget/1.2", false},
	}
	for _, c := range cases {
		require.Equal(t, c.bot, Parse(c.agent).Bot, c.agent)
	}
}
