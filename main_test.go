package main

import (
	"net"
	"testing"
	"time"
)

func TestParseTCPKeepAlive(t *testing.T) {
	tests := []struct {
		in      string
		want    net.KeepAliveConfig
		wantErr bool
	}{
		{in: "on", want: net.KeepAliveConfig{Enable: true}},
		{in: " OFF ", want: net.KeepAliveConfig{}},
		{in: "45:45:3", want: net.KeepAliveConfig{Enable: true, Idle: 45 * time.Second, Interval: 45 * time.Second, Count: 3}},
		{in: "10: 5 :2", want: net.KeepAliveConfig{Enable: true, Idle: 10 * time.Second, Interval: 5 * time.Second, Count: 2}},
		{in: "", wantErr: true},
		{in: "sometimes", wantErr: true},
		{in: "1:2", wantErr: true},
		{in: "0:1:1", wantErr: true},
		{in: "1:x:1", wantErr: true},
		{in: "1:1:-3", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseTCPKeepAlive(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err=%v wantErr=%v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Fatalf("got %+v want %+v", got, tt.want)
			}
		})
	}
}

func TestDefaultsFromEnvironment(t *testing.T) {
	t.Setenv("PROXY_PORT", "")
	if got := defaultListen(); got != ":1080" {
		t.Fatalf("defaultListen()=%q", got)
	}

	t.Setenv("PROXY_PORT", "9050")
	if got := defaultListen(); got != ":9050" {
		t.Fatalf("defaultListen()=%q", got)
	}

	t.Setenv("PROXY_USERNAME", "")
	if got := envOr("PROXY_USERNAME", "admin"); got != "admin" {
		t.Fatalf("envOr()=%q", got)
	}
	t.Setenv("PROXY_USERNAME", "alice")
	if got := envOr("PROXY_USERNAME", "admin"); got != "alice" {
		t.Fatalf("envOr()=%q", got)
	}

	t.Setenv("ALL_PROXY", "")
	t.Setenv("all_proxy", "")
	if got := defaultUpstream(); got != "direct://" {
		t.Fatalf("defaultUpstream()=%q", got)
	}
	t.Setenv("all_proxy", "socks5://127.0.0.1:1081")
	if got := defaultUpstream(); got != "socks5://127.0.0.1:1081" {
		t.Fatalf("defaultUpstream()=%q", got)
	}
}
