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

// Package sqlparser parses the SELECT dialect accepted by the czar into a
// typed AST. Every node can render itself back to SQL through a
// TrackedBuffer, be walked by a visitor, and be deep-copied, which is what
// the rewrite passes build on.
package sqlparser

// SQLNode defines the interface for all nodes generated by the parser.
type SQLNode interface {
	Format(buf *TrackedBuffer)
	walkSubtree(visit Visit) error
}

// Statement represents a statement.
type Statement interface {
	SQLNode
	iStatement()
}

// Select represents a SELECT statement.
type Select struct {
	Distinct    bool
	SelectExprs SelectExprs
	From        TableExprs
	Where       Expr
	GroupBy     GroupBy
	Having      Expr
	OrderBy     OrderBy
	Limit       *Limit
}

func (*Select) iStatement() {}

// Format builds the query back from the tree.
func (node *Select) Format(buf *TrackedBuffer) {
	buf.Myprintf("select %s%v from %v", distinctStr(node.Distinct), node.SelectExprs, node.From)
	if node.Where != nil {
		buf.Myprintf(" where %v", node.Where)
	}
	buf.Myprintf("%v", node.GroupBy)
	if node.Having != nil {
		buf.Myprintf(" having %v", node.Having)
	}
	buf.Myprintf("%v%v", node.OrderBy, node.Limit)
}

func distinctStr(distinct bool) string {
	if distinct {
		return "distinct "
	}
	return ""
}

// SelectExprs represents SELECT expressions.
type SelectExprs []SelectExpr

// Format builds the query back from the tree.
func (node SelectExprs) Format(buf *TrackedBuffer) {
	var prefix string
	for _, n := range node {
		buf.Myprintf("%s%v", prefix, n)
		prefix = ", "
	}
}

// SelectExpr represents a SELECT expression.
type SelectExpr interface {
	SQLNode
	iSelectExpr()
}

func (*StarExpr) iSelectExpr()    {}
func (*AliasedExpr) iSelectExpr() {}

// StarExpr defines a '*' or 'table.*' expression.
type StarExpr struct {
	TableName TableName
}

// Format builds the query back from the tree.
func (node *StarExpr) Format(buf *TrackedBuffer) {
	if !node.TableName.IsEmpty() {
		buf.Myprintf("%v.", node.TableName)
	}
	buf.Myprintf("*")
}

// AliasedExpr defines an aliased SELECT expression.
type AliasedExpr struct {
	Expr Expr
	As   string
}

// Format builds the query back from the tree.
func (node *AliasedExpr) Format(buf *TrackedBuffer) {
	buf.Myprintf("%v", node.Expr)
	if node.As != "" {
		buf.Myprintf(" as %s", node.As)
	}
}

// TableExprs represents a list of table expressions.
type TableExprs []TableExpr

// Format builds the query back from the tree.
func (node TableExprs) Format(buf *TrackedBuffer) {
	var prefix string
	for _, n := range node {
		buf.Myprintf("%s%v", prefix, n)
		prefix = ", "
	}
}

// TableExpr represents a table expression.
type TableExpr interface {
	SQLNode
	iTableExpr()
}

func (*AliasedTableExpr) iTableExpr() {}
func (*JoinTableExpr) iTableExpr()    {}

// AliasedTableExpr represents a table expression coupled with an optional
// alias. The Expr is a TableName before rewriting, or a ChunkTable after
// the rewriter has bound it to a partitioned table.
type AliasedTableExpr struct {
	Expr SimpleTableExpr
	As   string
}

// Format builds the query back from the tree.
func (node *AliasedTableExpr) Format(buf *TrackedBuffer) {
	buf.Myprintf("%v", node.Expr)
	if node.As != "" {
		buf.Myprintf(" as %s", node.As)
	}
}

// SimpleTableExpr represents a direct table reference.
type SimpleTableExpr interface {
	SQLNode
	iSimpleTableExpr()
}

func (TableName) iSimpleTableExpr()   {}
func (*ChunkTable) iSimpleTableExpr() {}

// TableName represents a (qualifier.)name table reference.
type TableName struct {
	Qualifier string
	Name      string
}

// Format builds the query back from the tree.
func (node TableName) Format(buf *TrackedBuffer) {
	if node.Qualifier != "" {
		buf.Myprintf("%s.", node.Qualifier)
	}
	buf.Myprintf("%s", node.Name)
}

// IsEmpty reports whether the name is unset.
func (node TableName) IsEmpty() bool {
	return node.Name == ""
}

// ChunkLevel selects which physical chunk table a ChunkTable renders to.
type ChunkLevel int

const (
	// ChunkPlain renders the unpartitioned table name unchanged.
	ChunkPlain ChunkLevel = iota
	// Chunked renders table_{CHUNK}.
	Chunked
	// SubChunked renders table_{CHUNK}_{SUBCHUNK}.
	SubChunked
	// SubChunkedOverlap renders tableFullOverlap_{CHUNK}_{SUBCHUNK}.
	SubChunkedOverlap
)

// ChunkTable is a table reference bound to a partitioned table. It renders
// with symbolic placeholders so one rendering serves every chunk.
type ChunkTable struct {
	Db    string
	Table string
	Level ChunkLevel
}

// overlapSuffix follows the worker-side naming for overlap tables.
const overlapSuffix = "FullOverlap"

// Format builds the query back from the tree, emitting placeholders.
// An unpartitioned table stays in its own database on every chunk; only
// chunked tables move with the {DB} substitution.
func (node *ChunkTable) Format(buf *TrackedBuffer) {
	if node.Level == ChunkPlain {
		if node.Db != "" {
			buf.Myprintf("%s.", node.Db)
		}
		buf.Myprintf("%s", node.Table)
		return
	}
	buf.WritePlaceholder(PlaceholderDB, "")
	buf.WriteByte('.')
	switch node.Level {
	case Chunked:
		buf.WritePlaceholder(PlaceholderTable, node.Table)
		buf.WriteByte('_')
		buf.WritePlaceholder(PlaceholderChunk, "")
	case SubChunked:
		buf.WritePlaceholder(PlaceholderTable, node.Table)
		buf.WriteByte('_')
		buf.WritePlaceholder(PlaceholderChunk, "")
		buf.WriteByte('_')
		buf.WritePlaceholder(PlaceholderSubChunk, "")
	case SubChunkedOverlap:
		buf.WritePlaceholder(PlaceholderTable, node.Table+overlapSuffix)
		buf.WriteByte('_')
		buf.WritePlaceholder(PlaceholderChunk, "")
		buf.WriteByte('_')
		buf.WritePlaceholder(PlaceholderSubChunk, "")
	}
}

// JoinTableExpr represents a TableExpr that's a JOIN operation.
type JoinTableExpr struct {
	LeftExpr  TableExpr
	Join      string
	RightExpr TableExpr
	Condition JoinCondition
}

// JoinTableExpr.Join values.
const (
	JoinStr      = "join"
	LeftJoinStr  = "left join"
	RightJoinStr = "right join"
	CrossJoinStr = "cross join"
)

// Format builds the query back from the tree.
func (node *JoinTableExpr) Format(buf *TrackedBuffer) {
	if node.Condition.Natural {
		buf.Myprintf("%v natural %s %v", node.LeftExpr, node.Join, node.RightExpr)
		return
	}
	buf.Myprintf("%v %s %v%v", node.LeftExpr, node.Join, node.RightExpr, node.Condition)
}

// JoinCondition represents the join conditions (either a ON or USING clause)
// of a JoinTableExpr.
type JoinCondition struct {
	On      Expr
	Using   []string
	Natural bool
}

// Format builds the query back from the tree.
func (node JoinCondition) Format(buf *TrackedBuffer) {
	if node.On != nil {
		buf.Myprintf(" on %v", node.On)
	}
	if len(node.Using) != 0 {
		buf.Myprintf(" using (")
		var prefix string
		for _, col := range node.Using {
			buf.Myprintf("%s%s", prefix, col)
			prefix = ", "
		}
		buf.Myprintf(")")
	}
}

// Expr represents an expression.
type Expr interface {
	SQLNode
	iExpr()
}

func (*AndExpr) iExpr()        {}
func (*OrExpr) iExpr()         {}
func (*NotExpr) iExpr()        {}
func (*ParenExpr) iExpr()      {}
func (*ComparisonExpr) iExpr() {}
func (*RangeCond) iExpr()      {}
func (*IsExpr) iExpr()         {}
func (*BinaryExpr) iExpr()     {}
func (*UnaryExpr) iExpr()      {}
func (*FuncExpr) iExpr()       {}
func (*ColName) iExpr()        {}
func (*SQLVal) iExpr()         {}
func (*NullVal) iExpr()        {}
func (ValTuple) iExpr()        {}

// AndExpr represents an AND expression.
type AndExpr struct {
	Left, Right Expr
}

// Format builds the query back from the tree.
func (node *AndExpr) Format(buf *TrackedBuffer) {
	buf.Myprintf("%v and %v", node.Left, node.Right)
}

// OrExpr represents an OR expression.
type OrExpr struct {
	Left, Right Expr
}

// Format builds the query back from the tree.
func (node *OrExpr) Format(buf *TrackedBuffer) {
	buf.Myprintf("%v or %v", node.Left, node.Right)
}

// NotExpr represents a NOT expression.
type NotExpr struct {
	Expr Expr
}

// Format builds the query back from the tree.
func (node *NotExpr) Format(buf *TrackedBuffer) {
	buf.Myprintf("not %v", node.Expr)
}

// ParenExpr represents a parenthesized boolean expression.
type ParenExpr struct {
	Expr Expr
}

// Format builds the query back from the tree.
func (node *ParenExpr) Format(buf *TrackedBuffer) {
	buf.Myprintf("(%v)", node.Expr)
}

// ComparisonExpr represents a two-value comparison expression.
type ComparisonExpr struct {
	Operator    string
	Left, Right Expr
}

// ComparisonExpr.Operator values.
const (
	EqualStr        = "="
	LessThanStr     = "<"
	GreaterThanStr  = ">"
	LessEqualStr    = "<="
	GreaterEqualStr = ">="
	NotEqualStr     = "!="
	LikeStr         = "like"
	NotLikeStr      = "not like"
	InStr           = "in"
	NotInStr        = "not in"
)

// Format builds the query back from the tree.
func (node *ComparisonExpr) Format(buf *TrackedBuffer) {
	buf.Myprintf("%v %s %v", node.Left, node.Operator, node.Right)
}

// RangeCond represents a BETWEEN or a NOT BETWEEN expression.
type RangeCond struct {
	Operator string
	Left     Expr
	From, To Expr
}

// RangeCond.Operator values.
const (
	BetweenStr    = "between"
	NotBetweenStr = "not between"
)

// Format builds the query back from the tree.
func (node *RangeCond) Format(buf *TrackedBuffer) {
	buf.Myprintf("%v %s %v and %v", node.Left, node.Operator, node.From, node.To)
}

// IsExpr represents an IS ... or an IS NOT ... expression.
type IsExpr struct {
	Operator string
	Expr     Expr
}

// IsExpr.Operator values.
const (
	IsNullStr    = "is null"
	IsNotNullStr = "is not null"
)

// Format builds the query back from the tree.
func (node *IsExpr) Format(buf *TrackedBuffer) {
	buf.Myprintf("%v %s", node.Expr, node.Operator)
}

// BinaryExpr represents a binary value expression.
type BinaryExpr struct {
	Operator    string
	Left, Right Expr
}

// Format builds the query back from the tree.
func (node *BinaryExpr) Format(buf *TrackedBuffer) {
	buf.Myprintf("%v %s %v", node.Left, node.Operator, node.Right)
}

// UnaryExpr represents a unary value expression.
type UnaryExpr struct {
	Operator string
	Expr     Expr
}

// Format builds the query back from the tree.
func (node *UnaryExpr) Format(buf *TrackedBuffer) {
	buf.Myprintf("%s%v", node.Operator, node.Expr)
}

// FuncExpr represents a function call.
type FuncExpr struct {
	Name     string
	Distinct bool
	Exprs    SelectExprs
}

// Format builds the query back from the tree.
func (node *FuncExpr) Format(buf *TrackedBuffer) {
	buf.Myprintf("%s(%s%v)", node.Name, distinctStr(node.Distinct), node.Exprs)
}

// IsAggregate returns true if the function is an aggregate.
func (node *FuncExpr) IsAggregate() bool {
	return aggregates[lowered(node.Name)]
}

// aggregates is the set of aggregate functions the rewriter understands.
var aggregates = map[string]bool{
	"avg":          true,
	"count":        true,
	"group_concat": true,
	"max":          true,
	"min":          true,
	"std":          true,
	"stddev":       true,
	"stddev_pop":   true,
	"stddev_samp":  true,
	"sum":          true,
	"var_pop":      true,
	"var_samp":     true,
	"variance":     true,
}

// ColName represents a column name, optionally qualified.
type ColName struct {
	Qualifier string
	Name      string
}

// Format builds the query back from the tree.
func (node *ColName) Format(buf *TrackedBuffer) {
	if node.Qualifier != "" {
		buf.Myprintf("%s.", node.Qualifier)
	}
	buf.Myprintf("%s", node.Name)
}

// ValType specifies the type for SQLVal.
type ValType int

// These are the possible Valtype values.
const (
	StrVal = ValType(iota)
	IntVal
	FloatVal
)

// SQLVal represents a single literal value.
type SQLVal struct {
	Type ValType
	Val  []byte
}

// NewStrVal builds a new StrVal.
func NewStrVal(in []byte) *SQLVal {
	return &SQLVal{Type: StrVal, Val: in}
}

// NewIntVal builds a new IntVal.
func NewIntVal(in []byte) *SQLVal {
	return &SQLVal{Type: IntVal, Val: in}
}

// NewFloatVal builds a new FloatVal.
func NewFloatVal(in []byte) *SQLVal {
	return &SQLVal{Type: FloatVal, Val: in}
}

// Format builds the query back from the tree.
func (node *SQLVal) Format(buf *TrackedBuffer) {
	switch node.Type {
	case StrVal:
		buf.Myprintf("'%s'", node.Val)
	default:
		buf.Myprintf("%s", node.Val)
	}
}

// NullVal represents a NULL value.
type NullVal struct{}

// Format builds the query back from the tree.
func (node *NullVal) Format(buf *TrackedBuffer) {
	buf.Myprintf("null")
}

// ValTuple represents a tuple of values, as in the rhs of IN.
type ValTuple []Expr

// Format builds the query back from the tree.
func (node ValTuple) Format(buf *TrackedBuffer) {
	buf.Myprintf("(")
	var prefix string
	for _, n := range node {
		buf.Myprintf("%s%v", prefix, n)
		prefix = ", "
	}
	buf.Myprintf(")")
}

// GroupBy represents a GROUP BY clause.
type GroupBy []Expr

// Format builds the query back from the tree.
func (node GroupBy) Format(buf *TrackedBuffer) {
	prefix := " group by "
	for _, n := range node {
		buf.Myprintf("%s%v", prefix, n)
		prefix = ", "
	}
}

// OrderBy represents an ORDER BY clause.
type OrderBy []*Order

// Format builds the query back from the tree.
func (node OrderBy) Format(buf *TrackedBuffer) {
	prefix := " order by "
	for _, n := range node {
		buf.Myprintf("%s%v", prefix, n)
		prefix = ", "
	}
}

// Order represents an ordering expression.
type Order struct {
	Expr      Expr
	Direction string
}

// Order.Direction values.
const (
	AscScr  = "asc"
	DescScr = "desc"
)

// Format builds the query back from the tree.
func (node *Order) Format(buf *TrackedBuffer) {
	buf.Myprintf("%v", node.Expr)
	if node.Direction != AscScr {
		buf.Myprintf(" %s", node.Direction)
	}
}

// Limit represents a LIMIT clause.
type Limit struct {
	Offset, Rowcount Expr
}

// Format builds the query back from the tree.
func (node *Limit) Format(buf *TrackedBuffer) {
	if node == nil {
		return
	}
	buf.Myprintf(" limit ")
	if node.Offset != nil {
		buf.Myprintf("%v, ", node.Offset)
	}
	buf.Myprintf("%v", node.Rowcount)
}
