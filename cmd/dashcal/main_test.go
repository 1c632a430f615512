package main

import (
	"testing"

	"dashcal/internal/config"
)

func TestCaptureURL(t *testing.T) {
	cases := []struct {
		name   string
		listen string
		url    string
		auth   *config.BasicAuthConfig
		want   string
	}{
		{name: "loopback", listen: "127.0.0.1:8080", want: "http://127.0.0.1:8080/"},
		{name: "wildcard", listen: "0.0.0.0:9000", want: "http://127.0.0.1:9000/"},
		{name: "port only", listen: ":8081", want: "http://127.0.0.1:8081/"},
		{name: "explicit", listen: ":8081", url: "http://kiosk.lan/", want: "http://kiosk.lan/"},
		{
			name:   "basic auth",
			listen: "127.0.0.1:8080",
			auth:   &config.BasicAuthConfig{Username: "admin", Password: "pw"},
			want:   "http://admin:pw@127.0.0.1:8080/",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			conf := config.DefaultConfig()
			conf.Listen = tc.listen
			conf.Capture.URL = tc.url
			conf.BasicAuth = tc.auth
			if got := captureURL(conf); got != tc.want {
				t.Errorf("captureURL() = %q, want %q", got, tc.want)
			}
		})
	}
}
