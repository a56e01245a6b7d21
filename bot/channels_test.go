package bot

import "testing"

func TestNormalizeChannel(t *testing.T) {
	cases := map[string]string{
		"Alpha":    "alpha",
		"#Alpha":   "alpha",
		"  #BETA ": "beta",
		"gamma":    "gamma",
	}
	for in, want := range cases {
		if got := NormalizeChannel(in); got != want {
			t.Errorf("NormalizeChannel(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestRegistryAddGetRemove(t *testing.T) {
	r := NewChannelRegistry()
	r.Add(DefaultChannelEntry("#Alpha"))

	e, ok := r.Get("ALPHA")
	if !ok || e.Name != "alpha" || !e.Enabled {
		t.Fatalf("Get = %+v ok=%v", e, ok)
	}

	r.Remove("#alpha")
	if _, ok := r.Get("alpha"); ok {
		t.Fatal("entry survived Remove")
	}
	r.Remove("alpha") // no-op
}

func TestRegistryEnabledFilterAndOrder(t *testing.T) {
	r := NewChannelRegistry()
	r.Add(DefaultChannelEntry("zeta"))
	r.Add(DefaultChannelEntry("alpha"))
	off := DefaultChannelEntry("mid")
	off.Enabled = false
	r.Add(off)

	enabled := r.Enabled()
	if len(enabled) != 2 || enabled[0].Name != "alpha" || enabled[1].Name != "zeta" {
		t.Fatalf("Enabled = %+v", enabled)
	}
	if got := len(r.All()); got != 3 {
		t.Fatalf("All length = %d, want 3", got)
	}
}

func TestRegistryReplace(t *testing.T) {
	r := NewChannelRegistry()
	r.Add(DefaultChannelEntry("old"))
	r.Replace([]ChannelEntry{DefaultChannelEntry("#New")})

	if _, ok := r.Get("old"); ok {
		t.Fatal("Replace kept a stale entry")
	}
	if _, ok := r.Get("new"); !ok {
		t.Fatal("Replace dropped the new entry")
	}
}

func TestLiveAnnouncementSettings(t *testing.T) {
	r := NewChannelRegistry()

	if _, _, registered := r.LiveAnnouncementSettings("ghost"); registered {
		t.Fatal("unregistered channel reported as registered")
	}

	e := DefaultChannelEntry("alpha")
	e.LiveMessage = "we live"
	r.Add(e)
	enabled, tmpl, registered := r.LiveAnnouncementSettings("alpha")
	if !registered || !enabled || tmpl != "we live" {
		t.Fatalf("settings = %v %q %v", enabled, tmpl, registered)
	}

	// A disabled channel never announces even with LiveEnabled set.
	e.Enabled = false
	r.Add(e)
	if enabled, _, _ := r.LiveAnnouncementSettings("alpha"); enabled {
		t.Fatal("disabled channel reported announcements enabled")
	}
}
