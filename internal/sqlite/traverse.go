package sqlite

import (
	"context"
	"slices"
	"sort"
	"strings"

	"github.com/mesh-intelligence/graphctx/pkg/types"
)

// maxInList bounds the number of ids bound in one IN (...) list.
const maxInList = 500

// ExecuteTraversal walks breadth first from bt.Start, one query per level.
// Relations are reported when both endpoints are the start or a reported
// entity. The entity type filter only affects what is reported; the walk
// continues through filtered entities.
func (t *tx) ExecuteTraversal(ctx context.Context, bt types.BackendTraversal) (types.TraversalRows, error) {
	var res types.TraversalRows
	if _, err := t.GetEntity(ctx, bt.Start); err != nil {
		return res, err
	}

	visited := map[string]bool{bt.Start: true}
	reported := map[string]bool{bt.Start: true}
	seenRel := map[string]bool{}
	var walked []types.RelationRow

	frontier := []string{bt.Start}
	for depth := 0; len(frontier) > 0 && (bt.MaxDepth == types.UnboundedDepth || depth < bt.MaxDepth); depth++ {
		rels, err := t.adjacent(ctx, frontier, bt)
		if err != nil {
			return types.TraversalRows{}, err
		}
		inFrontier := make(map[string]bool, len(frontier))
		for _, id := range frontier {
			inFrontier[id] = true
		}

		var next []string
		for _, r := range rels {
			for _, hop := range hops(r, bt.Direction, inFrontier) {
				if !seenRel[r.ID] {
					seenRel[r.ID] = true
					walked = append(walked, r)
				}
				if !visited[hop] {
					visited[hop] = true
					next = append(next, hop)
				}
			}
		}

		found, err := t.entitiesByID(ctx, next)
		if err != nil {
			return types.TraversalRows{}, err
		}
		for _, id := range next {
			e, ok := found[id]
			if !ok {
				continue
			}
			if len(bt.EntityTypes) == 0 || slices.Contains(bt.EntityTypes, e.Type) {
				reported[id] = true
				res.Entities = append(res.Entities, types.TraversalHit{Entity: e, Depth: depth + 1})
			}
		}
		frontier = next
	}

	for _, r := range walked {
		if reported[r.FromID] && reported[r.ToID] {
			res.Relations = append(res.Relations, r)
		}
	}
	return res, nil
}

func hops(r types.RelationRow, d types.Direction, frontier map[string]bool) []string {
	var out []string
	if (d == types.Outbound || d == types.Both) && frontier[r.FromID] {
		out = append(out, r.ToID)
	}
	if (d == types.Inbound || d == types.Both) && frontier[r.ToID] {
		out = append(out, r.FromID)
	}
	return out
}

type orderedRelation struct {
	rowid int64
	row   types.RelationRow
}

// adjacent returns the relations touching ids in the traversal direction,
// in insertion order.
func (t *tx) adjacent(ctx context.Context, ids []string, bt types.BackendTraversal) ([]types.RelationRow, error) {
	seen := map[string]bool{}
	var all []orderedRelation

	for chunk := range slices.Chunk(ids, maxInList) {
		marks := placeholders(len(chunk))
		var (
			conds []string
			args  []any
		)
		if bt.Direction == types.Outbound || bt.Direction == types.Both {
			conds = append(conds, "from_id IN ("+marks+")")
			args = append(args, anySlice(chunk)...)
		}
		if bt.Direction == types.Inbound || bt.Direction == types.Both {
			conds = append(conds, "to_id IN ("+marks+")")
			args = append(args, anySlice(chunk)...)
		}
		q := "SELECT rowid, " + relationColumns + " FROM relations WHERE (" + strings.Join(conds, " OR ") + ")"
		if len(bt.RelationTypes) > 0 {
			q += " AND relation_type IN (" + placeholders(len(bt.RelationTypes)) + ")"
			args = append(args, anySlice(bt.RelationTypes)...)
		}

		rows, err := t.tx.QueryContext(ctx, q, args...)
		if err != nil {
			return nil, types.Storagef(err, "query adjacent relations")
		}
		for rows.Next() {
			var rowid int64
			var r types.RelationRow
			var props, created, upd string
			if err := rows.Scan(&rowid, &r.ID, &r.Type, &r.FromID, &r.ToID, &props, &created, &upd); err != nil {
				rows.Close()
				return nil, types.Storagef(err, "scan relation")
			}
			if err := fillRow(&r.Properties, &r.CreatedAt, &r.UpdatedAt, props, created, upd); err != nil {
				rows.Close()
				return nil, types.Storagef(err, "scan relation")
			}
			if !seen[r.ID] {
				seen[r.ID] = true
				all = append(all, orderedRelation{rowid: rowid, row: r})
			}
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, types.Storagef(err, "query adjacent relations")
		}
	}

	sort.Slice(all, func(i, j int) bool { return all[i].rowid < all[j].rowid })
	out := make([]types.RelationRow, len(all))
	for i, o := range all {
		out[i] = o.row
	}
	return out, nil
}

func (t *tx) entitiesByID(ctx context.Context, ids []string) (map[string]types.EntityRow, error) {
	out := make(map[string]types.EntityRow, len(ids))
	for chunk := range slices.Chunk(ids, maxInList) {
		rows, err := t.tx.QueryContext(ctx,
			"SELECT "+entityColumns+" FROM entities WHERE entity_id IN ("+placeholders(len(chunk))+")",
			anySlice(chunk)...)
		if err != nil {
			return nil, types.Storagef(err, "query entities")
		}
		for rows.Next() {
			e, err := scanEntity(rows)
			if err != nil {
				rows.Close()
				return nil, types.Storagef(err, "scan entity")
			}
			out[e.ID] = *e
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, types.Storagef(err, "query entities")
		}
	}
	return out, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func anySlice(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}
