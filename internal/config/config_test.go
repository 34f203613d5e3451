package config

import (
	"testing"
)

func TestLoadConfigWithEnvOverride(t *testing.T) {
	tmp := t.TempDir()
	t.Setenv("HOME", tmp)

	cfg := DefaultConfig()
	cfg.Endpoint.Server = "mail.example.com"
	cfg.Endpoint.Username = "crawler@example.com"
	cfg.Endpoint.Password = "secret"

	if _, err := Save(cfg); err != nil {
		t.Fatalf("save config: %v", err)
	}

	t.Setenv("MAILCRAWL_ENDPOINT_SERVER", "env.mail.local")

	loaded, err := Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	if loaded.Endpoint.Server != "env.mail.local" {
		t.Fatalf("expected env override, got %q", loaded.Endpoint.Server)
	}
	if loaded.Endpoint.Username != "crawler@example.com" {
		t.Fatalf("expected username from file, got %q", loaded.Endpoint.Username)
	}
	if loaded.Job.Versioning != VersioningFingerprint {
		t.Fatalf("expected default versioning, got %q", loaded.Job.Versioning)
	}
}

func TestLoadNormalizesProtocol(t *testing.T) {
	tmp := t.TempDir()
	t.Setenv("HOME", tmp)
	t.Setenv("MAILCRAWL_ENDPOINT_PROTOCOL", "IMAP")

	loaded, err := Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if loaded.Endpoint.Protocol != ProtocolIMAP {
		t.Fatalf("expected normalized protocol, got %q", loaded.Endpoint.Protocol)
	}
}

func TestValidateEndpoint(t *testing.T) {
	ep := Endpoint{
		Server:   "mail.example.com",
		Protocol: ProtocolIMAPS,
		Username: "crawler",
		Password: "secret",
	}
	if err := ValidateEndpoint(ep); err != nil {
		t.Fatalf("valid endpoint rejected: %v", err)
	}

	smtp := ep
	smtp.Protocol = ProtocolSMTP
	if err := ValidateEndpoint(smtp); err == nil {
		t.Fatal("expected smtp endpoint to be rejected")
	}

	unknown := ep
	unknown.Protocol = "nntp"
	if err := ValidateEndpoint(unknown); err == nil {
		t.Fatal("expected unknown protocol to be rejected")
	}

	missing := ep
	missing.Server = ""
	if err := ValidateEndpoint(missing); err == nil {
		t.Fatal("expected missing server to be rejected")
	}
}

func TestValidateJob(t *testing.T) {
	spec := JobSpec{
		Filters:  []Filter{{Name: FilterSubject, Value: "invoice"}, {Name: FilterFolder, Value: "Billing"}},
		Metadata: []string{FieldSubject, FieldFrom, FieldAttachmentMIMEType},
	}
	if err := ValidateJob(spec); err != nil {
		t.Fatalf("valid job spec rejected: %v", err)
	}

	spec.Filters = append(spec.Filters, Filter{Name: "cc", Value: "x"})
	if err := ValidateJob(spec); err == nil {
		t.Fatal("expected unknown filter attribute to be rejected")
	}
}

func TestDefaultPort(t *testing.T) {
	cases := map[string]int{
		ProtocolIMAP:  143,
		ProtocolIMAPS: 993,
		ProtocolPOP3:  110,
		ProtocolPOP3S: 995,
		"bogus":       0,
	}
	for protocol, want := range cases {
		if got := DefaultPort(protocol); got != want {
			t.Fatalf("DefaultPort(%q) = %d, want %d", protocol, got, want)
		}
	}
}
