package database

import (
	"fmt"
	"strings"

	"nrelay/internal/relay"
)

// filterSQL compiles a relay.Filter into a WHERE clause and its arguments.
// The compiled predicate must agree exactly with Filter.Matches; both sides
// implement the exact-or-prefix rule, inclusive time bounds, OR across the
// values of one field and AND across fields. Tombstoned and already-expired
// rows are always excluded.
func filterSQL(f relay.Filter, now int64) (string, []any) {
	parts := []string{
		"deleted = 0",
		"(expires_at IS NULL OR expires_at > ?)",
	}
	args := []any{now}

	if len(f.Kinds) > 0 {
		parts = append(parts, "kind IN ("+placeholders(len(f.Kinds))+")")
		for _, k := range f.Kinds {
			args = append(args, k)
		}
	}

	if clause, clauseArgs := idColumnSQL("id", f.IDs); clause != "" {
		parts = append(parts, clause)
		args = append(args, clauseArgs...)
	}
	if clause, clauseArgs := idColumnSQL("pubkey", f.Authors); clause != "" {
		parts = append(parts, clause)
		args = append(args, clauseArgs...)
	}

	if f.Since != nil {
		parts = append(parts, "created_at >= ?")
		args = append(args, *f.Since)
	}
	if f.Until != nil {
		parts = append(parts, "created_at <= ?")
		args = append(args, *f.Until)
	}

	for _, tag := range []struct {
		name   string
		values []string
	}{
		{"e", f.ETags},
		{"p", f.PTags},
		{"d", f.DTags},
	} {
		if clause, clauseArgs := tagSQL(tag.name, tag.values); clause != "" {
			parts = append(parts, clause)
			args = append(args, clauseArgs...)
		}
	}

	return strings.Join(parts, " AND "), args
}

// idColumnSQL builds the exact-or-prefix predicate for an id-valued column:
// 64-char values compare with IN, shorter ones with LIKE 'prefix%'.
func idColumnSQL(column string, values []string) (string, []any) {
	if len(values) == 0 {
		return "", nil
	}

	var exact []string
	var prefixes []string
	for _, v := range values {
		if len(v) == 64 {
			exact = append(exact, v)
		} else {
			prefixes = append(prefixes, v)
		}
	}

	var alts []string
	var args []any
	if len(exact) > 0 {
		alts = append(alts, column+" IN ("+placeholders(len(exact))+")")
		for _, v := range exact {
			args = append(args, v)
		}
	}
	for _, p := range prefixes {
		alts = append(alts, column+` LIKE ? ESCAPE '\'`)
		args = append(args, escapeLike(p)+"%")
	}

	return "(" + strings.Join(alts, " OR ") + ")", args
}

// tagSQL builds an EXISTS predicate over event_tags applying the
// exact-or-prefix rule to tag values of the given name.
func tagSQL(name string, values []string) (string, []any) {
	if len(values) == 0 {
		return "", nil
	}

	var exact []string
	var prefixes []string
	for _, v := range values {
		if len(v) == 64 {
			exact = append(exact, v)
		} else {
			prefixes = append(prefixes, v)
		}
	}

	var alts []string
	args := []any{name}
	if len(exact) > 0 {
		alts = append(alts, "t.value IN ("+placeholders(len(exact))+")")
		for _, v := range exact {
			args = append(args, v)
		}
	}
	for _, p := range prefixes {
		alts = append(alts, `t.value LIKE ? ESCAPE '\'`)
		args = append(args, escapeLike(p)+"%")
	}

	clause := fmt.Sprintf(
		"EXISTS (SELECT 1 FROM event_tags t WHERE t.event_id = events.id AND t.name = ? AND (%s))",
		strings.Join(alts, " OR "))
	return clause, args
}

// placeholders returns n comma-separated SQL placeholders.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat("?, ", n-1) + "?"
}

// escapeLike escapes LIKE metacharacters so a prefix only ever matches
// literally.
func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, "%", `\%`)
	s = strings.ReplaceAll(s, "_", `\_`)
	return s
}

// queryLimit resolves the effective row cap for a filter.
func queryLimit(f relay.Filter) int {
	limit := f.Limit
	if limit <= 0 {
		limit = relay.DefaultQueryLimit
	}
	if limit > relay.StoreHardCap {
		limit = relay.StoreHardCap
	}
	return limit
}
