package testutil

import (
	"os"
	"path/filepath"
	"testing"
)

// SeedYAML is a small site: two doors, three users, a handful of swipes
// on 2026-03-02 and 2026-03-03 UTC.
const SeedYAML = `
users:
  - {id: u1, name: Ada Lovelace, email: ada@example.com, card_id: "04:A1:B2:C3", role: admin, active: true, created_at: 2026-01-05T09:00:00Z}
  - {id: u2, name: Grace Hopper, email: grace@example.com, card_id: "04:D4:E5:F6", role: staff, active: true, created_at: 2026-01-06T09:00:00Z}
  - {id: u3, name: Alan Turing, email: alan@example.com, card_id: "04:07:08:09", role: staff, active: false, created_at: 2026-01-07T09:00:00Z}
doors:
  - {id: d1, name: Lobby, location: Ground floor, locked: true}
  - {id: d2, name: Server Room, location: Basement, locked: true}
devices:
  - {id: r1, name: Lobby reader, door_id: d1, status: online, last_seen: 2026-03-03T17:00:00Z}
  - {id: r2, name: Server room reader, door_id: d2, status: offline, last_seen: 2026-03-01T08:00:00Z}
access_logs:
  - {id: l1, user_id: u1, card_id: "04:A1:B2:C3", door_id: d1, device_id: r1, granted: true, occurred_at: 2026-03-02T08:01:00Z}
  - {id: l2, user_id: u2, card_id: "04:D4:E5:F6", door_id: d1, device_id: r1, granted: true, occurred_at: 2026-03-02T08:15:00Z}
  - {id: l3, user_id: u3, card_id: "04:07:08:09", door_id: d2, device_id: r2, granted: false, reason: inactive card, occurred_at: 2026-03-02T22:40:00Z}
  - {id: l4, user_id: u1, card_id: "04:A1:B2:C3", door_id: d2, device_id: r2, granted: true, occurred_at: 2026-03-03T09:30:00Z}
  - {card_id: "FF:FF:FF:FF", door_id: d1, device_id: r1, granted: false, reason: unknown card, occurred_at: 2026-03-03T23:59:00Z}
`

func WriteFile(t *testing.T, dir string, name string, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}
