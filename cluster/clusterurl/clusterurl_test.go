// Copyright (C) 2024 kvwire contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

package clusterurl

import "testing"

func TestParseURLPlain(t *testing.T) {
	cfg, err := ParseURL("redis://example.com:6380/2?maxRedirects=7")
	if err != nil {
		t.Fatalf("ParseURL: %v", err)
	}
	if cfg.Addr != "example.com:6380" {
		t.Fatalf("Addr = %q", cfg.Addr)
	}
	if cfg.TLS {
		t.Fatal("redis:// must not select TLS")
	}
	if cfg.Database != 2 {
		t.Fatalf("Database = %d, want 2", cfg.Database)
	}
	if cfg.Options["maxRedirects"] != "7" {
		t.Fatalf("Options = %v", cfg.Options)
	}
}

func TestParseURLDefaultPort(t *testing.T) {
	cfg, err := ParseURL("redis://example.com")
	if err != nil {
		t.Fatalf("ParseURL: %v", err)
	}
	if cfg.Addr != "example.com:6379" {
		t.Fatalf("Addr = %q, want default port 6379", cfg.Addr)
	}
}

func TestParseURLTLS(t *testing.T) {
	cfg, err := ParseURL("rediss://secure.example.com")
	if err != nil {
		t.Fatalf("ParseURL: %v", err)
	}
	if !cfg.TLS {
		t.Fatal("rediss:// must select TLS")
	}
}

func TestParseURLCredentials(t *testing.T) {
	cfg, err := ParseURL("redis://user:secret@h:6379")
	if err != nil {
		t.Fatalf("ParseURL: %v", err)
	}
	if !cfg.Credentials.Set || cfg.Username != "user" || cfg.Password != "secret" {
		t.Fatalf("Credentials = %+v", cfg.Credentials)
	}
}

func TestParseURLPasswordOnly(t *testing.T) {
	cfg, err := ParseURL("redis://secret@h")
	if err != nil {
		t.Fatalf("ParseURL: %v", err)
	}
	if !cfg.Credentials.Set || cfg.Username != "" || cfg.Password != "secret" {
		t.Fatalf("Credentials = %+v, want password-only", cfg.Credentials)
	}
}

func TestParseURLRejectsUnknownScheme(t *testing.T) {
	if _, err := ParseURL("http://example.com"); err == nil {
		t.Fatal("expected an error for an unsupported scheme")
	}
	if _, err := ParseURL("redis://"); err == nil {
		t.Fatal("expected an error for a missing host")
	}
}

func TestParseSeeds(t *testing.T) {
	seeds, err := ParseSeeds("a:7000, b , c:7002,", false)
	if err != nil {
		t.Fatalf("ParseSeeds: %v", err)
	}
	want := []string{"a:7000", "b:6379", "c:7002"}
	if len(seeds) != len(want) {
		t.Fatalf("got %d seeds, want %d", len(seeds), len(want))
	}
	for i, w := range want {
		if seeds[i].Addr != w {
			t.Fatalf("seed %d = %q, want %q", i, seeds[i].Addr, w)
		}
	}
}

func TestParseSeedsEmpty(t *testing.T) {
	if _, err := ParseSeeds(" , ", false); err == nil {
		t.Fatal("expected an error for an empty seed list")
	}
}
