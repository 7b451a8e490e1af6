package navigation

import "testing"

func TestRestoreDeepLinkGoesStraightToEvent(t *testing.T) {
	r, out := Restore("/events/evt123", Persisted{})

	want := State{Section: ViewEvent, SelectedID: "evt123"}
	if r.State() != want || out.State != want {
		t.Fatalf("state = %+v, want %+v", r.State(), want)
	}
	if out.Path != "" {
		t.Fatalf("deep link must not redirect, got path %q", out.Path)
	}
}

func TestRestorePrecedence(t *testing.T) {
	cases := []struct {
		name      string
		path      string
		persisted Persisted
		want      State
		wantPath  string
	}{
		{"path beats persisted", "/host", Persisted{Section: Notifications}, State{Section: Host}, ""},
		{"persisted when path is root", "/", Persisted{Section: Notifications}, State{Section: Notifications}, "/notifications"},
		{"persisted event view", "", Persisted{Section: ViewEvent, EventID: "e9"}, State{Section: ViewEvent, SelectedID: "e9"}, "/events/e9"},
		{"persisted event view without id", "/", Persisted{Section: ViewEvent}, State{Section: Events}, "/events"},
		{"garbage persisted", "/", Persisted{Section: "bogus"}, State{Section: Events}, "/events"},
		{"nothing", "/", Persisted{}, State{Section: Events}, "/events"},
		{"unknown path falls to persisted", "/nope/x/y", Persisted{Section: Login}, State{Section: Login}, "/login"},
	}
	for _, tc := range cases {
		r, out := Restore(tc.path, tc.persisted)
		if r.State() != tc.want {
			t.Errorf("%s: state = %+v, want %+v", tc.name, r.State(), tc.want)
		}
		if out.Path != tc.wantPath {
			t.Errorf("%s: path = %q, want %q", tc.name, out.Path, tc.wantPath)
		}
	}
}

func TestNavClickHostClearsSelectionUnlessEditing(t *testing.T) {
	r, _ := Restore("/events/e1", Persisted{})

	out := r.NavClick(Host, "")
	if out.State != (State{Section: Host}) || out.Path != "/host" {
		t.Fatalf("create mode: %+v", out)
	}
	if out.ClearPinDrop {
		t.Fatal("entering host must not clear pin drop")
	}

	out = r.NavClick(Host, "e2")
	if out.State != (State{Section: Host, SelectedID: "e2"}) || out.Path != "/host/e2" {
		t.Fatalf("edit mode: %+v", out)
	}
}

func TestNavClickSideEffects(t *testing.T) {
	r, _ := Restore("/host", Persisted{})

	out := r.NavClick(Events, "")
	if !out.Persist || !out.Refresh || !out.ClearPinDrop || out.Path != "/events" {
		t.Fatalf("events click: %+v", out)
	}

	out = r.NavClick(Login, "")
	if out.Refresh || !out.ClearPinDrop || out.Path != "/login" {
		t.Fatalf("login click: %+v", out)
	}

	out = r.NavClick(Notifications, "")
	if !out.Refresh || out.Path != "/notifications" {
		t.Fatalf("notifications click: %+v", out)
	}
}

func TestEveryTransitionAwayFromHostClearsPinDrop(t *testing.T) {
	r, _ := Restore("/", Persisted{})
	others := []Section{Events, Notifications, Login, Signup}

	for i := 0; i < 20; i++ {
		if out := r.NavClick(Host, ""); out.ClearPinDrop {
			t.Fatal("host entry cleared pin drop")
		}
		var out Outcome
		switch i % 3 {
		case 0:
			out = r.NavClick(others[i%len(others)], "")
		case 1:
			out = r.ViewEvent("e1")
		default:
			out = r.PathChanged("/events")
		}
		if !out.ClearPinDrop {
			t.Fatalf("iteration %d left host without clearing pin drop: %+v", i, out)
		}
	}
}

func TestViewEvent(t *testing.T) {
	r, _ := Restore("/", Persisted{})
	out := r.ViewEvent("abc")
	if out.State != (State{Section: ViewEvent, SelectedID: "abc"}) || out.Path != "/events/abc" || !out.Persist {
		t.Fatalf("out = %+v", out)
	}
	if out.Refresh {
		t.Fatal("detail view does not refetch the list")
	}

	out = r.ViewEvent("")
	if out.State.Section != Events {
		t.Fatalf("empty id should fall back to the list: %+v", out)
	}
}

func TestPathChanged(t *testing.T) {
	r, _ := Restore("/events", Persisted{})

	out := r.PathChanged("/events/e5")
	if out.State != (State{Section: ViewEvent, SelectedID: "e5"}) || out.Path != "" {
		t.Fatalf("event path: %+v", out)
	}

	out = r.PathChanged("/host/")
	if out.State != (State{Section: Host}) || out.Path != "" {
		t.Fatalf("host path: %+v", out)
	}

	out = r.PathChanged("/definitely/not/a/route")
	if out.State.Section != Events || out.Path != "/events" || !out.Refresh {
		t.Fatalf("unknown path: %+v", out)
	}

	out = r.PathChanged("/events")
	if out.Refresh {
		t.Fatal("staying on the list must not refetch")
	}
}

func TestSignOut(t *testing.T) {
	r, _ := Restore("/events/e1", Persisted{})
	out := r.SignOut()
	if out.Path != "" || out.State.Section != ViewEvent || out.Notice == "" {
		t.Fatalf("detail view sign out: %+v", out)
	}

	r, _ = Restore("/notifications", Persisted{})
	out = r.SignOut()
	if out.Path != "/events" || out.State.Section != Events || out.Notice == "" {
		t.Fatalf("notifications sign out: %+v", out)
	}
}

func TestSignedInRedirectsOnce(t *testing.T) {
	r, _ := Restore("/login", Persisted{})

	first := r.SignedIn()
	if first.Path != "/events" || first.State.Section != Events {
		t.Fatalf("first sign-in: %+v", first)
	}

	r.NavClick(Notifications, "")
	second := r.SignedIn()
	if second.Path != "" || second.State.Section != Notifications {
		t.Fatalf("second notification must not redirect: %+v", second)
	}

	r.SignOut()
	third := r.SignedIn()
	if third.Path != "/events" {
		t.Fatalf("sign-in after sign-out should redirect again: %+v", third)
	}
}

func TestPathRoundTrip(t *testing.T) {
	states := []State{
		{Section: Events},
		{Section: Notifications},
		{Section: Host},
		{Section: Host, SelectedID: "e 1"},
		{Section: ViewEvent, SelectedID: "evt/2"},
		{Section: Login},
		{Section: Signup},
	}
	for _, st := range states {
		got, ok := ParsePath(PathFor(st))
		if !ok || got != st {
			t.Errorf("ParsePath(PathFor(%+v)) = %+v, %v", st, got, ok)
		}
	}
}
