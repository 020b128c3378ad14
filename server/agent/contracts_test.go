package agent

import (
	"strings"
	"testing"

	"minebench/server/game"
)

func TestBuildObservation(t *testing.T) {
	b, err := game.NewBoard(9, 9, 10, 4)
	if err != nil {
		t.Fatal(err)
	}
	b.Apply(game.Flag, 1, 1)
	o := BuildObservation("g-1", game.Easy, b, 1, "Flag placed")
	if o.Rows != 9 || o.Cols != 9 || o.Mines != 10 {
		t.Fatalf("dims wrong: %+v", o)
	}
	if o.Flags != 1 || o.Moves != 1 {
		t.Fatalf("counters wrong: flags=%d moves=%d", o.Flags, o.Moves)
	}
	if len(strings.Split(o.Grid, "\n")) != 9 {
		t.Fatalf("grid has wrong height:\n%s", o.Grid)
	}
	if len(o.Legal) != 2 {
		t.Fatalf("legal actions: %v", o.Legal)
	}
}

func TestValidate(t *testing.T) {
	o := Observation{Rows: 9, Cols: 9, Legal: []string{"reveal", "flag"}}
	cases := []struct {
		name string
		m    MoveOut
		ok   bool
	}{
		{"reveal in bounds", MoveOut{Action: "reveal", Row: 4, Col: 4}, true},
		{"flag in bounds", MoveOut{Action: "flag", Row: 0, Col: 8}, true},
		{"case folded", MoveOut{Action: " Reveal ", Row: 1, Col: 1}, true},
		{"unknown action", MoveOut{Action: "detonate", Row: 0, Col: 0}, false},
		{"row too large", MoveOut{Action: "reveal", Row: 9, Col: 0}, false},
		{"negative col", MoveOut{Action: "flag", Row: 0, Col: -1}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := Validate(o, tc.m)
			if tc.ok && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !tc.ok && err == nil {
				t.Fatalf("expected rejection of %+v", tc.m)
			}
		})
	}
}

func TestKind(t *testing.T) {
	if Kind("flag") != game.Flag || Kind(" FLAG ") != game.Flag {
		t.Fatal("flag mapping broken")
	}
	if Kind("reveal") != game.Reveal || Kind("anything") != game.Reveal {
		t.Fatal("reveal mapping broken")
	}
}
