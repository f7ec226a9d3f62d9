/*
Copyright 2026 The SkyServ Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package planbuilder

import (
	"context"

	"skyserv.io/skyserv/go/sky/catalog"
	"skyserv.io/skyserv/go/sky/chunker"
	"skyserv.io/skyserv/go/sky/skyerrors"
	"skyserv.io/skyserv/go/sky/sqlparser"
)

// Builder rewrites parsed statements against one catalog snapshot.
type Builder struct {
	catalog   *catalog.Cache
	defaultDb string

	// DefaultOverlapDeg is the near-neighbor overlap used when the
	// partitioning metadata does not carry one.
	DefaultOverlapDeg float64
}

// NewBuilder returns a Builder resolving unqualified tables in defaultDb.
func NewBuilder(cat *catalog.Cache, defaultDb string) *Builder {
	return &Builder{catalog: cat, defaultDb: defaultDb}
}

// Build runs the rewrite pipeline over sql. The pass order is fixed: scope
// resolution, partition classification, spatial extraction, match-table
// rewrite, sub-chunking decision, aggregation split, template finalization.
// Match rewrite runs before the sub-chunking decision so expanded director
// references participate in it.
func (b *Builder) Build(ctx context.Context, sql string) (*ChunkQuerySpec, error) {
	parsed, err := sqlparser.ParseSelect(sql)
	if err != nil {
		return nil, err
	}
	stmt := sqlparser.CloneSelect(parsed)

	sc, err := b.resolveScope(ctx, stmt)
	if err != nil {
		return nil, err
	}

	spatial, err := extractSpatial(sc)
	if err != nil {
		return nil, err
	}

	if err := rewriteMatchTables(sc); err != nil {
		return nil, err
	}

	subChunked, overlap, err := decideSubChunking(sc, b.DefaultOverlapDeg)
	if err != nil {
		return nil, err
	}

	agg, err := splitAggregates(sc)
	if err != nil {
		return nil, err
	}

	spec := &ChunkQuerySpec{
		Db:             sc.db,
		SubChunked:     subChunked,
		OverlapDeg:     overlap,
		SchemaHint:     agg.schemaHint,
		NeedsFixup:     agg.needsFixup,
		NeedsMergeOnly: agg.needsMergeOnly,
		Fixup:          agg.fixup,
		OrderBy:        agg.orderBy,
	}
	if err := b.finalizeTemplates(sc, spec); err != nil {
		return nil, err
	}
	if err := b.enumerateChunks(sc, spec, spatial); err != nil {
		return nil, err
	}
	return spec, nil
}

// tableRef is one resolved FROM entry.
type tableRef struct {
	alias string
	info  catalog.TableInfo
	node  *sqlparser.AliasedTableExpr
	// overlap marks the reference that reads the overlap table in the
	// second near-neighbor template.
	overlap bool
}

func (r *tableRef) director() *catalog.DirTableInfo { return r.info.Director() }

// scope is the per-statement rewrite state threaded through the passes.
type scope struct {
	db      string
	stmt    *sqlparser.Select
	tables  []*tableRef
	byAlias map[string]*tableRef

	// set by the passes
	matchExpanded bool
	subChunked    bool
}

// resolveScope walks the FROM list, resolves every table against the
// catalog, and classifies the statement. All partitioned tables must live
// in one database.
func (b *Builder) resolveScope(ctx context.Context, stmt *sqlparser.Select) (*scope, error) {
	sc := &scope{stmt: stmt, byAlias: make(map[string]*tableRef)}
	if len(stmt.From) == 0 {
		return nil, unsupportedf("query has no FROM clause")
	}
	var walkTable func(node sqlparser.TableExpr) error
	walkTable = func(node sqlparser.TableExpr) error {
		switch node := node.(type) {
		case *sqlparser.AliasedTableExpr:
			name, ok := node.Expr.(sqlparser.TableName)
			if !ok {
				return skyerrors.New(skyerrors.Internal, "table reference already rewritten")
			}
			db := name.Qualifier
			if db == "" {
				db = b.defaultDb
			}
			if db == "" {
				return skyerrors.Errorf(skyerrors.InvalidArgument,
					"no database selected for table %s", name.Name)
			}
			info, err := b.catalog.TableInfo(ctx, db, name.Name)
			if err != nil {
				return err
			}
			ref := &tableRef{alias: node.As, info: info, node: node}
			if ref.alias == "" {
				ref.alias = name.Name
			}
			sc.tables = append(sc.tables, ref)
			sc.byAlias[ref.alias] = ref
			if info.Partitioned() {
				if sc.db != "" && sc.db != db {
					return unsupportedf("partitioned tables span databases %s and %s", sc.db, db)
				}
				sc.db = db
			}
			return nil
		case *sqlparser.JoinTableExpr:
			if err := walkTable(node.LeftExpr); err != nil {
				return err
			}
			return walkTable(node.RightExpr)
		}
		return skyerrors.Errorf(skyerrors.Internal, "unexpected table expression %T", node)
	}
	for _, node := range stmt.From {
		if err := walkTable(node); err != nil {
			return nil, err
		}
	}
	if sc.db == "" {
		// No partitioned table anywhere: run against the default db.
		sc.db = b.defaultDb
		if sc.db == "" {
			sc.db = sc.tables[0].info.Db()
		}
	}
	return sc, nil
}

// partitioned returns the partitioned references in FROM order.
func (sc *scope) partitioned() []*tableRef {
	var out []*tableRef
	for _, ref := range sc.tables {
		if ref.info.Partitioned() {
			out = append(out, ref)
		}
	}
	return out
}

// decideSubChunking reports whether execution must fan out per sub-chunk,
// and the overlap halo to pad chunk enumeration with. Sub-chunking applies
// iff a participating director is materialized at sub-chunk level and the
// statement has a near-neighbor shape: a director self-join, an expanded
// match table, or an angular-separation predicate.
func decideSubChunking(sc *scope, defaultOverlap float64) (bool, float64, error) {
	var subDir *catalog.DirTableInfo
	for _, ref := range sc.partitioned() {
		if dir, ok := ref.info.(*catalog.DirTableInfo); ok && dir.SubChunks {
			subDir = dir
			break
		}
	}
	if subDir == nil {
		return false, 0, nil
	}
	if !sc.matchExpanded && !hasSelfJoin(sc) && !hasAngSepPredicate(sc.stmt) {
		return false, 0, nil
	}
	sc.subChunked = true
	overlap := subDir.Overlap()
	nn := subDir.Striping.OverlapNearNeighborDeg
	if nn == 0 {
		nn = defaultOverlap
	}
	if nn > overlap {
		overlap = nn
	}
	// The second director reference of the sub-chunked pair reads the
	// overlap table. Match and child tables are never sub-chunked.
	marked := false
	for _, ref := range sc.partitioned() {
		dir, ok := ref.info.(*catalog.DirTableInfo)
		if !ok || !dir.SubChunks {
			continue
		}
		if marked {
			ref.overlap = true
			break
		}
		marked = true
	}
	return true, overlap, nil
}

func hasSelfJoin(sc *scope) bool {
	seen := make(map[string]bool)
	for _, ref := range sc.partitioned() {
		key := ref.info.Db() + "." + ref.info.Name()
		if seen[key] {
			return true
		}
		seen[key] = true
	}
	return false
}

// hasAngSepPredicate looks for an angular-separation call in WHERE, the
// usual shape of a near-neighbor search.
func hasAngSepPredicate(stmt *sqlparser.Select) bool {
	if stmt.Where == nil {
		return false
	}
	found := false
	_ = sqlparser.Walk(func(node sqlparser.SQLNode) (bool, error) {
		if fn, ok := node.(*sqlparser.FuncExpr); ok {
			switch loweredName(fn.Name) {
			case "scisql_angsep", "qserv_angsep":
				found = true
			}
		}
		return !found, nil
	}, stmt.Where)
	return found
}

// finalizeTemplates binds every partitioned table reference to its chunk
// table form and renders the parallel statement into templates.
func (b *Builder) finalizeTemplates(sc *scope, spec *ChunkQuerySpec) error {
	parts := sc.partitioned()
	bind := func(overlapPass bool) *sqlparser.QueryTemplate {
		for _, ref := range sc.tables {
			level := sqlparser.ChunkPlain
			if ref.info.Partitioned() {
				level = sqlparser.Chunked
				if sc.subChunked {
					if dir, ok := ref.info.(*catalog.DirTableInfo); ok && dir.SubChunks {
						level = sqlparser.SubChunked
						if overlapPass && ref.overlap {
							level = sqlparser.SubChunkedOverlap
						}
					}
				}
			}
			ref.node.Expr = &sqlparser.ChunkTable{
				Db:    ref.info.Db(),
				Table: ref.info.Name(),
				Level: level,
			}
		}
		buf := sqlparser.NewTrackedBuffer()
		sc.stmt.Format(buf)
		return buf.ParsedTemplate()
	}

	spec.Templates = []*sqlparser.QueryTemplate{bind(false)}
	if sc.subChunked && len(parts) > 1 {
		spec.Templates = append(spec.Templates, bind(true))
	}
	return nil
}

// enumerateChunks fills spec.Chunks from the spatial restriction. Queries
// with no partitioned table collapse to a single dummy-chunk job.
func (b *Builder) enumerateChunks(sc *scope, spec *ChunkQuerySpec, spatial *spatialInfo) error {
	parts := sc.partitioned()
	if len(parts) == 0 {
		spec.Chunks = []ChunkSpec{{ChunkID: DummyChunk}}
		return nil
	}
	dir := parts[0].director()
	if dir == nil {
		return skyerrors.Errorf(skyerrors.Internal,
			"partitioned table %s has no director", parts[0].info.Name())
	}
	grid, err := chunker.NewGrid(dir.Striping)
	if err != nil {
		return err
	}
	region := spatial.region
	if region != nil && spec.OverlapDeg > 0 {
		region = chunker.Padded(region, spec.OverlapDeg)
	}
	for _, chunkID := range grid.Chunks(region) {
		if !spatial.allowsChunk(chunkID) {
			continue
		}
		cs := ChunkSpec{ChunkID: chunkID}
		if spec.SubChunked {
			subs, err := grid.SubChunks(chunkID, region)
			if err != nil {
				return err
			}
			cs.SubChunks = subs
		}
		spec.Chunks = append(spec.Chunks, cs)
	}
	return nil
}

// unsupportedf builds the error returned for queries the rewriter
// understands but refuses to run.
func unsupportedf(format string, args ...any) error {
	return skyerrors.Errorf(skyerrors.Unimplemented, "unsupported query: "+format, args...)
}
