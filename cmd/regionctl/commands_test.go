package main

import (
	"strings"
	"testing"

	"github.com/joshuapare/regionspace/space"
)

func TestInfoCommand(t *testing.T) {
	tests := []struct {
		name        string
		args        []string
		wantErr     bool
		wantContain []string
	}{
		{
			name:        "defaults",
			args:        []string{"info", "--no-color"},
			wantContain: []string{"Region Space Information:", "Capacity: 16MB", "Regions: 64", "Collections: 1"},
		},
		{
			name:        "several cycles",
			args:        []string{"info", "--capacity", "8MB", "--cycles", "3", "--objects", "500"},
			wantContain: []string{"Capacity: 8MB", "Regions: 32", "Collections: 3"},
		},
		{
			name:    "bad capacity",
			args:    []string{"info", "--capacity", "lots"},
			wantErr: true,
		},
		{
			name:    "bad live ratio",
			args:    []string{"info", "--live", "1.5"},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := runCLI(t, tt.args...)
			if (err != nil) != tt.wantErr {
				t.Fatalf("error = %v, wantErr %v", err, tt.wantErr)
			}
			assertContains(t, out, tt.wantContain)
		})
	}
}

func TestInfoCommand_JSON(t *testing.T) {
	out, err := runCLI(t, "info", "--json", "--cycles", "2", "--objects", "300")
	if err != nil {
		t.Fatalf("info failed: %v", err)
	}
	var info SpaceInfo
	assertJSON(t, out, &info)
	if info.Time != 2 {
		t.Errorf("time = %d, want 2", info.Time)
	}
	if info.Regions != 64 {
		t.Errorf("regions = %d, want 64", info.Regions)
	}
	if info.NonFreeRegions > info.Regions {
		t.Errorf("non-free regions %d exceed %d regions", info.NonFreeRegions, info.Regions)
	}
}

func TestStressCommand_JSON(t *testing.T) {
	out, err := runCLI(t, "stress", "--json", "--objects", "400", "--mutators", "3")
	if err != nil {
		t.Fatalf("stress failed: %v", err)
	}
	var stats []CycleStats
	assertJSON(t, out, &stats)
	if len(stats) != defaultStressCycles {
		t.Fatalf("got %d cycles, want %d", len(stats), defaultStressCycles)
	}
	for i, s := range stats {
		if s.Cycle != i+1 {
			t.Errorf("cycle %d reported as %d", i+1, s.Cycle)
		}
		if s.Allocated > 3*400 {
			t.Errorf("cycle %d allocated %d objects, quota is %d", s.Cycle, s.Allocated, 3*400)
		}
	}
	if stats[0].FromSpaceRegions == 0 {
		t.Errorf("first collection should evacuate the newly allocated regions")
	}
}

func TestStressCommand_Text(t *testing.T) {
	out, err := runCLI(t, "stress", "--cycles", "2", "--objects", "200", "--no-color")
	if err != nil {
		t.Fatalf("stress failed: %v", err)
	}
	assertContains(t, out, []string{"cycle   1:", "cycle   2:", "✓ 2 cycles verified"})
	assertNotContains(t, out, []string{"cycle   3:"})
}

func TestDumpCommand(t *testing.T) {
	out, err := runCLI(t, "dump", "--objects", "100", "--mutators", "1")
	if err != nil {
		t.Fatalf("dump failed: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if !strings.HasPrefix(lines[0], "regionctl 0x") {
		t.Errorf("first line %q should describe the space", lines[0])
	}
	for _, line := range lines[1:] {
		assertContains(t, line, []string{"Region[", "state=", "type=ToSpace"})
		assertNotContains(t, line, []string{"state=Free"})
	}

	all, err := runCLI(t, "dump", "--all", "--capacity", "4MB")
	if err != nil {
		t.Fatalf("dump --all failed: %v", err)
	}
	if got := strings.Count(all, "Region["); got != 16 {
		t.Errorf("dump --all printed %d regions, want 16", got)
	}
}

func TestVerifyCommand(t *testing.T) {
	out, err := runCLI(t, "verify", "--cycles", "4", "--objects", "300", "--large", "0.02")
	if err != nil {
		t.Fatalf("verify failed: %v", err)
	}
	assertContains(t, out, []string{"Validation:", "Region bookkeeping valid after 4 cycles", "reachable objects intact"})

	out, err = runCLI(t, "verify", "--json", "--cycles", "2", "--objects", "200")
	if err != nil {
		t.Fatalf("verify --json failed: %v", err)
	}
	var res VerifyResult
	assertJSON(t, out, &res)
	if res.Cycles != 2 || !res.Bookkeeping || !res.Reachable {
		t.Errorf("unexpected result %+v", res)
	}
}

func TestMapCommand(t *testing.T) {
	out, err := runCLI(t, "map", "--no-color", "--capacity", "32MB", "--objects", "200")
	if err != nil {
		t.Fatalf("map failed: %v", err)
	}
	assertContains(t, out, []string{"Region map", "128 regions"})

	grid := strings.Split(strings.TrimSpace(out), "\n")[1:3]
	for _, row := range grid {
		if len(row) != mapColumns {
			t.Errorf("row %q has %d cells, want %d", row, len(row), mapColumns)
		}
	}
}

func TestRenderMap(t *testing.T) {
	s := space.Snapshot{
		Regions: []space.RegionInfo{
			{State: space.RegionStateFree, Type: space.RegionTypeNone},
			{State: space.RegionStateAllocated, Type: space.RegionTypeToSpace},
			{State: space.RegionStateAllocated, Type: space.RegionTypeToSpace, IsNewlyAllocated: true},
			{State: space.RegionStateAllocated, Type: space.RegionTypeToSpace, IsTLAB: true},
			{State: space.RegionStateLarge, Type: space.RegionTypeToSpace},
			{State: space.RegionStateLargeTail, Type: space.RegionTypeToSpace},
			{State: space.RegionStateAllocated, Type: space.RegionTypeFromSpace},
			{State: space.RegionStateLarge, Type: space.RegionTypeUnevacFromSpace},
		},
	}
	if got := renderMap(s, false); got != ".#+TLlFU" {
		t.Errorf("renderMap = %q, want %q", got, ".#+TLlFU")
	}
}
