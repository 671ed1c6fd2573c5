package models

import (
	"encoding/json"
	"slices"
	"testing"
)

func TestUserSubscription(t *testing.T) {
	t.Run("NewUserSubscription defaults", func(t *testing.T) {
		s := NewUserSubscription("alice", "https://example.com/a.png")
		if !s.Notify {
			t.Error("expected notify to default to true")
		}
		if s.Cooldown {
			t.Error("expected cooldown to default to false")
		}
		if s.Sound != DefaultSound {
			t.Errorf("expected sound %q, got %q", DefaultSound, s.Sound)
		}
		if len(s.SubredditBlacklist) != 0 {
			t.Errorf("expected empty blacklist, got %v", s.SubredditBlacklist)
		}
	})

	t.Run("mutators preserve other fields", func(t *testing.T) {
		base := NewUserSubscription("alice", "https://example.com/a.png").
			WithCooldown(true).
			WithSound("soft-bell").
			WithSubredditBlacklist([]string{"pan"})

		got := base.WithNotifications(false)
		if got.Notify {
			t.Error("expected notify false")
		}
		if !got.Cooldown || got.Sound != "soft-bell" || !got.Blacklists("pan") || got.IconURL != base.IconURL {
			t.Errorf("WithNotifications changed other fields: %+v", got)
		}
		if !base.Notify {
			t.Error("original value was modified")
		}

		got = base.WithIconURL("")
		if got.HasIcon() {
			t.Error("expected icon to be cleared")
		}
		if got.Username != "alice" || !got.Cooldown {
			t.Errorf("WithIconURL changed other fields: %+v", got)
		}
	})

	t.Run("blacklist copy is independent", func(t *testing.T) {
		base := NewUserSubscription("alice", "").WithSubredditBlacklist([]string{"pan"})
		other := base.WithCooldown(true)
		other.SubredditBlacklist[0] = "changed"
		if base.SubredditBlacklist[0] != "pan" {
			t.Error("mutator shares the blacklist slice with its receiver")
		}
	})

	t.Run("WithSubredditBlacklist normalizes to a set", func(t *testing.T) {
		s := NewUserSubscription("alice", "").WithSubredditBlacklist([]string{"talentshow", "pan", " pan ", ""})
		want := []string{"pan", "talentshow"}
		if !slices.Equal(s.SubredditBlacklist, want) {
			t.Errorf("got %v, want %v", s.SubredditBlacklist, want)
		}
	})

	t.Run("WithSound empty resets to default", func(t *testing.T) {
		s := NewUserSubscription("alice", "").WithSound("chime").WithSound("")
		if s.Sound != DefaultSound {
			t.Errorf("got %q", s.Sound)
		}
	})

	t.Run("Validate", func(t *testing.T) {
		if err := NewUserSubscription("", "").Validate(); err == nil {
			t.Error("expected error for empty username")
		}
		if err := NewUserSubscription("  ", "").Validate(); err == nil {
			t.Error("expected error for blank username")
		}
		if err := NewUserSubscription("bob", "").Validate(); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("SoundDisplayName", func(t *testing.T) {
		tc := []struct{ sound, want string }{
			{"soft-bell", "Soft Bell"},
			{"default", "Default"},
			{"LOUD-alarm-2", "Loud Alarm 2"},
		}
		for _, tt := range tc {
			got := NewUserSubscription("a", "").WithSound(tt.sound).SoundDisplayName()
			if got != tt.want {
				t.Errorf("SoundDisplayName(%q) = %q, want %q", tt.sound, got, tt.want)
			}
		}
	})

	t.Run("UnmarshalJSON fills defaults", func(t *testing.T) {
		var s UserSubscription
		if err := json.Unmarshal([]byte(`{"username":"alice","notify":false,"cooldown":false}`), &s); err != nil {
			t.Fatalf("unmarshal failed: %v", err)
		}
		if s.Sound != DefaultSound {
			t.Errorf("expected default sound, got %q", s.Sound)
		}
		if s.SubredditBlacklist == nil {
			t.Error("expected non-nil blacklist")
		}
		if s.Notify {
			t.Error("expected notify false to be preserved")
		}
	})
}

func TestIdentityHelpers(t *testing.T) {
	alice := NewUserSubscription("alice", "")
	bob := NewUserSubscription("bob", "")
	list := []UserSubscription{alice, bob}

	t.Run("SameIdentity ignores settings", func(t *testing.T) {
		if !SameIdentity(alice, alice.WithNotifications(false).WithCooldown(true)) {
			t.Error("expected same identity")
		}
		if SameIdentity(alice, bob) {
			t.Error("expected different identity")
		}
	})

	t.Run("IsSubscribedTo is exact match", func(t *testing.T) {
		if !IsSubscribedTo("alice", list) {
			t.Error("expected alice to be subscribed")
		}
		if IsSubscribedTo("Alice", list) {
			t.Error("expected case-sensitive match")
		}
		if IsSubscribedTo("carol", nil) {
			t.Error("expected false on nil list")
		}
	})

	t.Run("Dedupe keeps first", func(t *testing.T) {
		got := Dedupe([]UserSubscription{alice, bob, alice.WithNotifications(false)})
		if len(got) != 2 || !got[0].Notify {
			t.Errorf("unexpected result: %+v", got)
		}
	})

	t.Run("NewlyAdded is identity based", func(t *testing.T) {
		carol := NewUserSubscription("carol", "")
		after := []UserSubscription{alice.WithNotifications(false), bob, carol}
		added := NewlyAdded([]UserSubscription{alice, bob}, after)
		if !slices.Equal(Usernames(added), []string{"carol"}) {
			t.Errorf("expected only carol, got %v", Usernames(added))
		}
		if got := NewlyAdded(after, after); len(got) != 0 {
			t.Errorf("expected nothing new, got %v", Usernames(got))
		}
	})
}

func TestParseIconURL(t *testing.T) {
	tc := []struct {
		name   string
		raw    string
		want   string
		wantOK bool
	}{
		{"plain https", "https://styles.redditmedia.com/icon.png", "https://styles.redditmedia.com/icon.png", true},
		{"escaped query", "https://i.redd.it/a.png?width=256&amp;s=abc", "https://i.redd.it/a.png?width=256&s=abc", true},
		{"empty", "", "", false},
		{"relative", "/static/icon.png", "", false},
		{"other scheme", "ftp://example.com/a.png", "", false},
	}
	for _, tt := range tc {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseIconURL(tt.raw)
			if ok != tt.wantOK || got != tt.want {
				t.Errorf("ParseIconURL(%q) = %q, %v; want %q, %v", tt.raw, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestFollowedAccount(t *testing.T) {
	t.Run("user with icon converts", func(t *testing.T) {
		a := FollowedAccount{DisplayName: "u_alice", SubredditType: "user", IconImg: "https://example.com/a.png"}
		s, ok := a.ToSubscription()
		if !ok {
			t.Fatal("expected conversion")
		}
		if s.Username != "alice" || !s.Notify || s.Sound != DefaultSound {
			t.Errorf("unexpected subscription: %+v", s)
		}
	})

	t.Run("community is filtered", func(t *testing.T) {
		a := FollowedAccount{DisplayName: "pan", SubredditType: "public", IconImg: "https://example.com/p.png"}
		if _, ok := a.ToSubscription(); ok {
			t.Error("expected community to be filtered")
		}
	})

	t.Run("user without icon is filtered", func(t *testing.T) {
		a := FollowedAccount{DisplayName: "u_bob", SubredditType: "user"}
		if _, ok := a.ToSubscription(); ok {
			t.Error("expected entry without icon to be filtered")
		}
	})

	t.Run("SubscriptionsFromPage preserves order", func(t *testing.T) {
		p := Page{Items: []FollowedAccount{
			{DisplayName: "u_bob", SubredditType: "user", IconImg: "https://example.com/b.png"},
			{DisplayName: "pan", SubredditType: "public", IconImg: "https://example.com/p.png"},
			{DisplayName: "u_alice", SubredditType: "user", IconImg: "https://example.com/a.png"},
		}}
		got := Usernames(SubscriptionsFromPage(p))
		if !slices.Equal(got, []string{"bob", "alice"}) {
			t.Errorf("got %v", got)
		}
	})
}

func TestRandomIcon(t *testing.T) {
	icon := RandomIcon()
	if !slices.Contains(DefaultIcons, icon) {
		t.Errorf("RandomIcon returned unknown icon %q", icon)
	}
}

func TestCursor(t *testing.T) {
	if !Cursor("").IsVacant() {
		t.Error("empty cursor should be vacant")
	}
	if Cursor("t5_abc").IsVacant() {
		t.Error("non-empty cursor should not be vacant")
	}
}
