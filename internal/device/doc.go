// Package device holds the Device and Volume model and the Registry that
// reconciles device-link events into it.
//
// # Architecture
//
//	┌──────────────────────────────────────────────────────────────────┐
//	│                            Registry                               │
//	│                                                                   │
//	│   byDevlink ──▶ ID ──▶ ┌──────────────┐                           │
//	│                        │    Device    │  Synthetic ─▶ Probed ─▶ Ok│
//	│   volumeLinks ─▶ Ref ─▶│  volumes[i]  │          └─▶ Broken └▶ Rejected
//	│                        └──────┬───────┘                           │
//	│   mountpoints ─▶ volume link  │                                   │
//	│                        ┌──────▼───────┐                           │
//	│                        │    Volume    │  Pending ─▶ Mounted ─▶ Removed
//	│                        │  Mountpoint  │     ├─▶ Unusable          │
//	│                        └──────────────┘     └─▶ Rejected ─▶ Removed
//	└──────────────────────────────────────────────────────────────────┘
//
// Devices live in an arena keyed by a small ring-allocated ID. Volumes live
// inside their Device and are referenced elsewhere by VolumeRef (device ID
// plus volume index), so a stale reference is a failed map lookup rather than
// a dangling pointer.
//
// A partition can be announced before its device. The Registry then creates
// a Synthetic device from the partition link's root name; the later
// whole-device event promotes that same Device instead of creating another.
//
// # Thread Safety
//
// None. The automount loop is the only caller.
package device
