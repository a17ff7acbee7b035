// Package models defines the core domain models for receipt splitting.
//
// # Receipt models
//
//   - Receipt: structured data reconstructed from recognized receipt text
//   - LineItem: one purchased entry on a receipt
//   - ValidationIssue: an arithmetic or structural finding about a Receipt
//
// # Splitting models
//
//   - Person: someone sharing the receipt
//   - ItemAttribution: which people share an item, addressed by item position
//   - PersonSplit: calculated share for one person (derived, never stored)
//   - Transfer: what a person owes whoever paid the receipt
//
// # Collaboration models
//
//   - SharedSession: server-held snapshot of a receipt split, expiring after a TTL
//   - SessionPatch: partial replacement of a session's people and attributions
//
// # Design Principles
//
// 1. **Optional means absent**: optional amounts are pointers; nil is "not on the receipt", not zero
// 2. **Positions, not IDs, for items**: attributions index into Receipt.Items, so item order is significant
// 3. **Avoid circular references**: use ID strings instead of pointers for relationships
// 4. **Copies cross boundaries**: stores and workspaces hand out Clone()d values, never shared slices
package models
