package broadcast

import (
	"testing"

	"pushherd/internal/store"
)

func subsWithTiers(tiers ...string) []store.SubscriptionWithTier {
	out := make([]store.SubscriptionWithTier, 0, len(tiers))
	for i, tier := range tiers {
		s := store.SubscriptionWithTier{Tier: tier}
		s.ID = "sub" + string(rune('a'+i))
		out = append(out, s)
	}
	return out
}

func TestParseFilter(t *testing.T) {
	t.Parallel()
	tests := []struct {
		raw     string
		want    TargetFilter
		wantErr bool
	}{
		{raw: "", want: FilterAll},
		{raw: "all", want: FilterAll},
		{raw: "ALL", want: FilterAll},
		{raw: " free ", want: FilterFree},
		{raw: "premium", want: FilterPremium},
		{raw: "vip", wantErr: true},
		{raw: "everyone", wantErr: true},
	}
	for _, tt := range tests {
		got, err := ParseFilter(tt.raw)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseFilter(%q): expected error", tt.raw)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseFilter(%q) error: %v", tt.raw, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseFilter(%q) = %q, want %q", tt.raw, got, tt.want)
		}
	}
}

func TestSelectAudienceAllIsIdentity(t *testing.T) {
	t.Parallel()
	subs := subsWithTiers("", "free", "gratuito", "premium", "vip", "weird")
	got := SelectAudience(subs, FilterAll)
	if len(got) != len(subs) {
		t.Fatalf("filter all kept %d of %d", len(got), len(subs))
	}
}

func TestSelectAudienceTiers(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		filter TargetFilter
		tier   string
		want   bool
	}{
		{name: "free keeps missing tier", filter: FilterFree, tier: "", want: true},
		{name: "free keeps free", filter: FilterFree, tier: "free", want: true},
		{name: "free keeps legacy alias", filter: FilterFree, tier: "gratuito", want: true},
		{name: "free keeps mixed case", filter: FilterFree, tier: "Free", want: true},
		{name: "free drops premium", filter: FilterFree, tier: "premium", want: false},
		{name: "free drops vip", filter: FilterFree, tier: "vip", want: false},
		{name: "premium keeps premium", filter: FilterPremium, tier: "premium", want: true},
		{name: "premium keeps vip", filter: FilterPremium, tier: "vip", want: true},
		{name: "premium drops missing tier", filter: FilterPremium, tier: "", want: false},
		{name: "premium drops free", filter: FilterPremium, tier: "free", want: false},
		{name: "premium drops alias", filter: FilterPremium, tier: "gratuito", want: false},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := tt.filter.Matches(tt.tier)
			if got != tt.want {
				t.Fatalf("%s.Matches(%q) = %v, want %v", tt.filter, tt.tier, got, tt.want)
			}
		})
	}
}

func TestSelectAudiencePreservesOrder(t *testing.T) {
	t.Parallel()
	subs := subsWithTiers("premium", "free", "vip", "", "premium")
	got := SelectAudience(subs, FilterPremium)
	want := []string{"suba", "subc", "sube"}
	if len(got) != len(want) {
		t.Fatalf("kept %d, want %d", len(got), len(want))
	}
	for i, id := range want {
		if got[i].ID != id {
			t.Fatalf("order broken at %d: got %s, want %s", i, got[i].ID, id)
		}
	}
}

func TestNewMessageValidation(t *testing.T) {
	t.Parallel()

	if _, err := NewMessage("", "body", "", ""); err == nil {
		t.Error("empty title accepted")
	}
	if _, err := NewMessage("title", "", "", ""); err == nil {
		t.Error("empty body accepted")
	}
	if _, err := NewMessage("title", "body", "", "nope"); err == nil {
		t.Error("unknown filter accepted")
	}

	long := make([]byte, MaxTitleLen+1)
	for i := range long {
		long[i] = 'x'
	}
	if _, err := NewMessage(string(long), "body", "", ""); err == nil {
		t.Error("oversized title accepted")
	}

	msg, err := NewMessage(" hi ", "there", "", "")
	if err != nil {
		t.Fatalf("valid message rejected: %v", err)
	}
	if msg.Title != "hi" {
		t.Errorf("title not trimmed: %q", msg.Title)
	}
	if msg.URL != "/" {
		t.Errorf("url default = %q, want /", msg.URL)
	}
	if msg.Filter != FilterAll {
		t.Errorf("filter default = %q, want all", msg.Filter)
	}
}
