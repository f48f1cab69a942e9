package storage

import "testing"

func TestObjectKeys(t *testing.T) {
	if got := GlobalIssueKey(2025, 3, "pdf"); got != "global/2025-03-newsletter.pdf" {
		t.Fatalf("GlobalIssueKey() = %q", got)
	}
	if got := DepartmentIssueKey("dpt_1", "iss_9", "pdf"); got != "department/dpt_1/iss_9.pdf" {
		t.Fatalf("DepartmentIssueKey() = %q", got)
	}
	if got := MediaKey("sub_7", "png"); got != "media/sub_7.png" {
		t.Fatalf("MediaKey() = %q", got)
	}
}

func TestPublicURL(t *testing.T) {
	c := &Client{publicBase: "https://cdn.example.com"}
	got := c.URL("global/2025-03-newsletter.pdf")
	want := "https://cdn.example.com/pratyush/global/2025-03-newsletter.pdf"
	if got != want {
		t.Fatalf("URL() = %q, want %q", got, want)
	}
}
