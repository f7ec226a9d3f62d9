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

package sqlparser

// Visit defines the signature of a function that
// can be used to visit all nodes of a parse tree.
type Visit func(node SQLNode) (kontinue bool, err error)

// Walk calls visit on every node.
// If visit returns true, the underlying nodes
// are also visited. If it returns an error, walking
// is interrupted, and the error is returned.
func Walk(visit Visit, nodes ...SQLNode) error {
	for _, node := range nodes {
		if node == nil {
			continue
		}
		kontinue, err := visit(node)
		if err != nil {
			return err
		}
		if kontinue {
			if err := node.walkSubtree(visit); err != nil {
				return err
			}
		}
	}
	return nil
}

func (node *Select) walkSubtree(visit Visit) error {
	subtree := []SQLNode{node.SelectExprs, node.From}
	if node.Where != nil {
		subtree = append(subtree, node.Where)
	}
	subtree = append(subtree, node.GroupBy)
	if node.Having != nil {
		subtree = append(subtree, node.Having)
	}
	subtree = append(subtree, node.OrderBy)
	if node.Limit != nil {
		subtree = append(subtree, node.Limit)
	}
	return Walk(visit, subtree...)
}

func (node SelectExprs) walkSubtree(visit Visit) error {
	for _, n := range node {
		if err := Walk(visit, n); err != nil {
			return err
		}
	}
	return nil
}

func (node *StarExpr) walkSubtree(visit Visit) error {
	return Walk(visit, node.TableName)
}

func (node *AliasedExpr) walkSubtree(visit Visit) error {
	return Walk(visit, node.Expr)
}

func (node TableExprs) walkSubtree(visit Visit) error {
	for _, n := range node {
		if err := Walk(visit, n); err != nil {
			return err
		}
	}
	return nil
}

func (node *AliasedTableExpr) walkSubtree(visit Visit) error {
	return Walk(visit, node.Expr)
}

func (node TableName) walkSubtree(visit Visit) error {
	return nil
}

func (node *ChunkTable) walkSubtree(visit Visit) error {
	return nil
}

func (node *JoinTableExpr) walkSubtree(visit Visit) error {
	if err := Walk(visit, node.LeftExpr, node.RightExpr); err != nil {
		return err
	}
	if node.Condition.On != nil {
		return Walk(visit, node.Condition.On)
	}
	return nil
}

func (node JoinCondition) walkSubtree(visit Visit) error {
	if node.On != nil {
		return Walk(visit, node.On)
	}
	return nil
}

func (node *AndExpr) walkSubtree(visit Visit) error {
	return Walk(visit, node.Left, node.Right)
}

func (node *OrExpr) walkSubtree(visit Visit) error {
	return Walk(visit, node.Left, node.Right)
}

func (node *NotExpr) walkSubtree(visit Visit) error {
	return Walk(visit, node.Expr)
}

func (node *ParenExpr) walkSubtree(visit Visit) error {
	return Walk(visit, node.Expr)
}

func (node *ComparisonExpr) walkSubtree(visit Visit) error {
	return Walk(visit, node.Left, node.Right)
}

func (node *RangeCond) walkSubtree(visit Visit) error {
	return Walk(visit, node.Left, node.From, node.To)
}

func (node *IsExpr) walkSubtree(visit Visit) error {
	return Walk(visit, node.Expr)
}

func (node *BinaryExpr) walkSubtree(visit Visit) error {
	return Walk(visit, node.Left, node.Right)
}

func (node *UnaryExpr) walkSubtree(visit Visit) error {
	return Walk(visit, node.Expr)
}

func (node *FuncExpr) walkSubtree(visit Visit) error {
	return Walk(visit, node.Exprs)
}

func (node *ColName) walkSubtree(visit Visit) error {
	return nil
}

func (node *SQLVal) walkSubtree(visit Visit) error {
	return nil
}

func (node *NullVal) walkSubtree(visit Visit) error {
	return nil
}

func (node ValTuple) walkSubtree(visit Visit) error {
	for _, n := range node {
		if err := Walk(visit, n); err != nil {
			return err
		}
	}
	return nil
}

func (node GroupBy) walkSubtree(visit Visit) error {
	for _, n := range node {
		if err := Walk(visit, n); err != nil {
			return err
		}
	}
	return nil
}

func (node OrderBy) walkSubtree(visit Visit) error {
	for _, n := range node {
		if err := Walk(visit, n); err != nil {
			return err
		}
	}
	return nil
}

func (node *Order) walkSubtree(visit Visit) error {
	return Walk(visit, node.Expr)
}

func (node *Limit) walkSubtree(visit Visit) error {
	if node == nil {
		return nil
	}
	if node.Offset != nil {
		if err := Walk(visit, node.Offset); err != nil {
			return err
		}
	}
	return Walk(visit, node.Rowcount)
}
