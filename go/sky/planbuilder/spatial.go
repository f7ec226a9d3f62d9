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
	"strconv"
	"strings"

	"skyserv.io/skyserv/go/sky/catalog"
	"skyserv.io/skyserv/go/sky/chunker"
	"skyserv.io/skyserv/go/sky/skyerrors"
	"skyserv.io/skyserv/go/sky/sqlparser"
)

// Spatial restrictor functions accepted in WHERE, and the worker-side
// predicate each one is rewritten to.
var restrictors = map[string]struct {
	scisql string
	parse  func([]float64) (chunker.Region, error)
}{
	"qserv_areaspec_box":     {"scisql_s2PtInBox", chunker.BoxFromParams},
	"qserv_areaspec_circle":  {"scisql_s2PtInCircle", chunker.CircleFromParams},
	"qserv_areaspec_ellipse": {"scisql_s2PtInEllipse", chunker.EllipseFromParams},
	"qserv_areaspec_poly":    {"scisql_s2PtInCPoly", chunker.PolygonFromParams},
}

// spatialInfo is the normalized spatial restriction of one statement. A nil
// region with a nil chunk filter means full scan.
type spatialInfo struct {
	region      chunker.Region
	chunkFilter map[int32]bool
}

func (s *spatialInfo) allowsChunk(id int32) bool {
	return s.chunkFilter == nil || s.chunkFilter[id]
}

// extractSpatial pulls region restrictors and explicit chunk-id filters out
// of the WHERE tree. Restrictors are replaced by the equivalent scisql
// point-in-region predicate on the dominant director's position columns;
// chunk-id filters restrict enumeration and are dropped from the tree.
// Restrictors must appear as top-level conjuncts.
func extractSpatial(sc *scope) (*spatialInfo, error) {
	info := &spatialInfo{}
	if sc.stmt.Where == nil {
		return info, nil
	}
	where, err := info.rewriteConjunct(sc, sc.stmt.Where)
	if err != nil {
		return nil, err
	}
	sc.stmt.Where = where
	return info, nil
}

// rewriteConjunct walks the AND spine. A nil return drops the conjunct.
func (s *spatialInfo) rewriteConjunct(sc *scope, expr sqlparser.Expr) (sqlparser.Expr, error) {
	switch expr := expr.(type) {
	case *sqlparser.AndExpr:
		left, err := s.rewriteConjunct(sc, expr.Left)
		if err != nil {
			return nil, err
		}
		right, err := s.rewriteConjunct(sc, expr.Right)
		if err != nil {
			return nil, err
		}
		switch {
		case left == nil:
			return right, nil
		case right == nil:
			return left, nil
		}
		expr.Left, expr.Right = left, right
		return expr, nil
	case *sqlparser.FuncExpr:
		if _, ok := restrictors[loweredName(expr.Name)]; ok {
			return s.acceptRestrictor(sc, expr)
		}
	case *sqlparser.ComparisonExpr:
		if filtered, err := s.acceptChunkFilter(expr); filtered || err != nil {
			return nil, err
		}
	}
	// Any restrictor buried deeper than the AND spine is a user error.
	err := sqlparser.Walk(func(node sqlparser.SQLNode) (bool, error) {
		if fn, ok := node.(*sqlparser.FuncExpr); ok {
			if _, found := restrictors[loweredName(fn.Name)]; found {
				return false, skyerrors.Errorf(skyerrors.InvalidArgument,
					"%s must be a top-level AND condition", fn.Name)
			}
		}
		return true, nil
	}, expr)
	if err != nil {
		return nil, err
	}
	return expr, nil
}

// acceptRestrictor records the region and returns the worker-side
// replacement predicate.
func (s *spatialInfo) acceptRestrictor(sc *scope, fn *sqlparser.FuncExpr) (sqlparser.Expr, error) {
	if s.region != nil {
		return nil, skyerrors.New(skyerrors.InvalidArgument,
			"query carries more than one spatial restrictor")
	}
	spec := restrictors[loweredName(fn.Name)]
	params, err := restrictorParams(fn)
	if err != nil {
		return nil, err
	}
	region, err := spec.parse(params)
	if err != nil {
		return nil, err
	}
	s.region = region

	// Rewrite onto the first director reference: only directors carry the
	// position columns. With no director in scope the restrictor only
	// restricts chunk enumeration and is dropped from the tree.
	for _, ref := range sc.partitioned() {
		dir, ok := ref.info.(*catalog.DirTableInfo)
		if !ok || dir.LonCol == "" || dir.LatCol == "" {
			continue
		}
		exprs := sqlparser.SelectExprs{
			aliased(&sqlparser.ColName{Qualifier: ref.alias, Name: dir.LonCol}),
			aliased(&sqlparser.ColName{Qualifier: ref.alias, Name: dir.LatCol}),
		}
		for _, arg := range fn.Exprs {
			exprs = append(exprs, sqlparser.CloneSelectExpr(arg))
		}
		return &sqlparser.ComparisonExpr{
			Operator: sqlparser.EqualStr,
			Left:     &sqlparser.FuncExpr{Name: spec.scisql, Exprs: exprs},
			Right:    sqlparser.NewIntVal([]byte("1")),
		}, nil
	}
	return nil, nil
}

// acceptChunkFilter recognizes `chunkId = N` and `chunkId IN (...)`.
func (s *spatialInfo) acceptChunkFilter(cmp *sqlparser.ComparisonExpr) (bool, error) {
	col, ok := cmp.Left.(*sqlparser.ColName)
	if !ok || loweredName(col.Name) != "chunkid" {
		return false, nil
	}
	add := func(expr sqlparser.Expr) error {
		val, ok := expr.(*sqlparser.SQLVal)
		if !ok || val.Type != sqlparser.IntVal {
			return skyerrors.New(skyerrors.InvalidArgument,
				"chunkId filter requires integer literals")
		}
		id, err := strconv.ParseInt(string(val.Val), 10, 32)
		if err != nil {
			return skyerrors.Wrap(err, "chunkId filter")
		}
		if s.chunkFilter == nil {
			s.chunkFilter = make(map[int32]bool)
		}
		s.chunkFilter[int32(id)] = true
		return nil
	}
	switch cmp.Operator {
	case sqlparser.EqualStr:
		return true, add(cmp.Right)
	case sqlparser.InStr:
		tuple, ok := cmp.Right.(sqlparser.ValTuple)
		if !ok {
			return false, nil
		}
		for _, expr := range tuple {
			if err := add(expr); err != nil {
				return true, err
			}
		}
		return true, nil
	}
	return false, nil
}

// restrictorParams extracts the numeric literal arguments of a restrictor.
func restrictorParams(fn *sqlparser.FuncExpr) ([]float64, error) {
	params := make([]float64, 0, len(fn.Exprs))
	for _, arg := range fn.Exprs {
		aliasedArg, ok := arg.(*sqlparser.AliasedExpr)
		if !ok {
			return nil, skyerrors.Errorf(skyerrors.InvalidArgument,
				"%s arguments must be numeric literals", fn.Name)
		}
		val, ok := aliasedArg.Expr.(*sqlparser.SQLVal)
		if !ok || val.Type == sqlparser.StrVal {
			return nil, skyerrors.Errorf(skyerrors.InvalidArgument,
				"%s arguments must be numeric literals", fn.Name)
		}
		f, err := strconv.ParseFloat(string(val.Val), 64)
		if err != nil {
			return nil, skyerrors.Wrapf(err, "%s argument", fn.Name)
		}
		params = append(params, f)
	}
	return params, nil
}

func aliased(expr sqlparser.Expr) *sqlparser.AliasedExpr {
	return &sqlparser.AliasedExpr{Expr: expr}
}

func loweredName(s string) string {
	return strings.ToLower(s)
}
