// Package triplet implements the Triplet Builder: given a
// cloud parent, a sync parent, and a freshly scanned list of filesystem
// children, it produces the sorted sequence of Rows the reconciler
// walks one directory at a time.
package triplet

import (
	"sort"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/syncrules/cloudsync/internal/cloud"
	"github.com/syncrules/cloudsync/internal/fsiface"
	"github.com/syncrules/cloudsync/internal/tree"
)

// Row is one aligned (cloudNode?, syncNode?, fsNode?) record.
type Row struct {
	CloudNode *cloud.Node
	SyncNode  *tree.Node
	FsNode    *fsiface.FsNode

	FsClashes    []fsiface.FsNode
	CloudClashes []*cloud.Node

	// SuppressRecursion is set by the reconciler (not the builder)
	// when a directory row should not be recursed into this pass.
	SuppressRecursion bool
}

// CaseFolding selects the filesystem-dependent comparator the second
// pairing pass uses for cloud-name comparison.
type CaseFolding int

const (
	// CaseSensitive compares cloud names by exact byte value, the
	// default for Linux/exFAT-style local roots.
	CaseSensitive CaseFolding = iota
	// CaseInsensitiveASCII case-folds ASCII only, matching
	// Windows/default-macOS local roots.
	CaseInsensitiveASCII
	// CaseInsensitiveUnicodeNFC case-folds after NFC normalisation,
	// matching macOS HFS+/APFS decomposition behaviour.
	CaseInsensitiveUnicodeNFC
)

// Build runs both pairing passes and returns the resulting
// rows, sorted by the same filesystem-dependent comparator used to pair
// them.
func Build(cloudParent *cloud.Node, syncParent *tree.Node, fsChildren []fsiface.FsNode, folding CaseFolding) []Row {
	rows := pairLocal(syncParent, fsChildren)
	rows = pairCloud(rows, cloudParent, folding)
	return rows
}

// pairLocal sorts FsChildren and syncParent.children by case-sensitive
// localname and pairs them by running both cursors forward. SyncNodes
// never collide on localname; FsNodes that do are recorded in
// FsClashes rather than arbitrarily picked, except when exactly one
// collider matches the existing SyncNode's fsid.
func pairLocal(syncParent *tree.Node, fsChildren []fsiface.FsNode) []Row {
	syncChildren := syncParent.Children()

	byName := make(map[string][]fsiface.FsNode)
	order := make([]string, 0, len(fsChildren))
	for _, fc := range fsChildren {
		if _, ok := byName[fc.Localname]; !ok {
			order = append(order, fc.Localname)
		}
		byName[fc.Localname] = append(byName[fc.Localname], fc)
	}
	sort.Strings(order)

	rows := make([]Row, 0, len(syncChildren)+len(order))
	seen := make(map[string]bool, len(order))

	for _, sc := range syncChildren {
		colliders := byName[sc.Localname]
		seen[sc.Localname] = true
		row := Row{SyncNode: sc}
		switch len(colliders) {
		case 0:
			// No matching fs entry this pass — sync-only row.
		case 1:
			fc := colliders[0]
			row.FsNode = &fc
		default:
			chosen := -1
			for i, fc := range colliders {
				if sc.Fsid.IsDefined() && fc.Fsid == sc.Fsid {
					chosen = i
					break
				}
			}
			if chosen >= 0 {
				fc := colliders[chosen]
				row.FsNode = &fc
				for i, fc2 := range colliders {
					if i != chosen {
						row.FsClashes = append(row.FsClashes, fc2)
					}
				}
			} else {
				row.FsClashes = append(row.FsClashes, colliders...)
			}
		}
		rows = append(rows, row)
	}

	for _, name := range order {
		if seen[name] {
			continue
		}
		colliders := byName[name]
		if len(colliders) == 1 {
			fc := colliders[0]
			rows = append(rows, Row{FsNode: &fc})
		} else {
			rows = append(rows, Row{FsClashes: colliders})
		}
	}

	sort.Slice(rows, func(i, j int) bool {
		return rowLocalName(rows[i]) < rowLocalName(rows[j])
	})
	return rows
}

func rowLocalName(r Row) string {
	if r.SyncNode != nil {
		return r.SyncNode.Localname
	}
	if r.FsNode != nil {
		return r.FsNode.Localname
	}
	if len(r.FsClashes) > 0 {
		return r.FsClashes[0].Localname
	}
	return ""
}

// pairCloud implements step 2: sort cloud children and the rows from
// step 1 by the filesystem-dependent comparator and pair them,
// preferring a handle match over a name match when both the row's
// SyncNode and a cloud child are present.
func pairCloud(rows []Row, cloudParent *cloud.Node, folding CaseFolding) []Row {
	var cloudChildren []*cloud.Node
	if cloudParent != nil {
		cloudChildren = cloudParent.Children
	}

	key := keyFunc(folding)

	byKey := make(map[string][]*cloud.Node)
	for _, cn := range cloudChildren {
		byKey[key(cn.DisplayName)] = append(byKey[key(cn.DisplayName)], cn)
	}

	assigned := make(map[*cloud.Node]bool, len(cloudChildren))

	for i := range rows {
		row := &rows[i]

		// Prefer a handle match: the SyncNode already records which
		// cloud node it is bound to.
		if row.SyncNode != nil && row.SyncNode.SyncedCloudHandle.IsDefined() {
			for _, cn := range cloudChildren {
				if assigned[cn] {
					continue
				}
				if cn.Handle == row.SyncNode.SyncedCloudHandle {
					row.CloudNode = cn
					assigned[cn] = true
					break
				}
			}
			if row.CloudNode != nil {
				continue
			}
		}

		name := rowLocalName(*row)
		if name == "" {
			continue
		}
		colliders := byKey[key(name)]
		var remaining []*cloud.Node
		for _, cn := range colliders {
			if !assigned[cn] {
				remaining = append(remaining, cn)
			}
		}
		switch len(remaining) {
		case 0:
		case 1:
			row.CloudNode = remaining[0]
			assigned[remaining[0]] = true
		default:
			if row.SyncNode != nil && row.SyncNode.SyncedCloudHandle.IsDefined() {
				for _, cn := range remaining {
					if cn.Handle == row.SyncNode.SyncedCloudHandle {
						row.CloudNode = cn
						assigned[cn] = true
						break
					}
				}
			}
			if row.CloudNode == nil {
				row.CloudClashes = append(row.CloudClashes, remaining...)
			} else {
				for _, cn := range remaining {
					if cn != row.CloudNode {
						row.CloudClashes = append(row.CloudClashes, cn)
					}
				}
			}
		}
	}

	// Step 3: cloud nodes without a matching row become rows with only
	// CloudNode set.
	for _, cn := range cloudChildren {
		if !assigned[cn] {
			rows = append(rows, Row{CloudNode: cn})
			assigned[cn] = true
		}
	}

	sort.SliceStable(rows, func(i, j int) bool {
		return key(rowSortName(rows[i])) < key(rowSortName(rows[j]))
	})
	return rows
}

func rowSortName(r Row) string {
	if n := rowLocalName(r); n != "" {
		return n
	}
	if r.CloudNode != nil {
		return r.CloudNode.DisplayName
	}
	return ""
}

// keyFunc returns the comparison-key function for the given folding
// mode: exact bytes, ASCII case-fold, or NFC-normalised case-fold.
func keyFunc(folding CaseFolding) func(string) string {
	switch folding {
	case CaseInsensitiveASCII:
		return func(s string) string {
			b := []byte(s)
			for i, c := range b {
				if 'A' <= c && c <= 'Z' {
					b[i] = c + ('a' - 'A')
				}
			}
			return string(b)
		}
	case CaseInsensitiveUnicodeNFC:
		return func(s string) string {
			return strings.ToLower(norm.NFC.String(s))
		}
	default:
		return func(s string) string { return s }
	}
}
