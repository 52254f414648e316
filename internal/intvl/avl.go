package intvl

// An AVL tree keyed by avlKey. Each node additionally tracks the largest interval end in its
// subtree so the start-ordered tree can prune overlap searches.

type avlKey struct {
	a, b, seq uint64
}

func (k avlKey) less(o avlKey) bool {
	if k.a != o.a {
		return k.a < o.a
	}
	if k.b != o.b {
		return k.b < o.b
	}
	return k.seq < o.seq
}

type avlTree struct {
	root *avlNode
}

type avlNode struct {
	key                 avlKey
	item                *item
	left, right, parent *avlNode
	heightCache         int
	maxEnd              uint64
}

func (t *avlTree) insert(key avlKey, it *item) *avlNode {
	// Find the insertion point and its parent node.
	var p *avlNode
	np, n := &t.root, t.root
	for n != nil {
		p = n
		if key.less(n.key) {
			np, n = &n.left, n.left
		} else {
			np, n = &n.right, n.right
		}
	}

	n = &avlNode{key: key, item: it, parent: p, heightCache: 1, maxEnd: it.to}
	*np = n
	t.rebalance(p)
	return n
}

func (t *avlTree) delete(node *avlNode) {
	nodeP := t.nodeP(node)

	if node.left != nil && node.right != nil {
		// Two children. Move node to where it has at most one child by transposing it with its
		// in-order successor. Swapping values instead would invalidate handles held by callers.
		succP, succ := &node.right, node.right
		for succ.left != nil {
			succP, succ = &succ.left, succ.left
		}

		parent, nl, nr, sp, sr := node.parent, node.left, node.right, succ.parent, succ.right
		*nodeP = succ
		if succ == node.right {
			succ.right = node
			nodeP = &succ.right
		} else {
			succ.right, node.parent, *succP = nr, sp, node
			nodeP = succP
		}
		node.left, node.right, succ.left, succ.parent = nil, sr, nl, parent
		node.heightCache, succ.heightCache = succ.heightCache, node.heightCache
		if succ.left != nil {
			succ.left.parent = succ
		}
		if succ.right != nil {
			succ.right.parent = succ
		}
		if node.right != nil {
			node.right.parent = node
		}
	}

	// Node has at most one child, so we can just remove node.
	if node.left == nil {
		*nodeP = node.right
		if node.right != nil {
			node.right.parent = node.parent
		}
	} else {
		*nodeP = node.left
		node.left.parent = node.parent
	}

	t.rebalance(node.parent)
	node.left, node.right, node.parent = nil, nil, nil
}

// search returns the first node in key order for which pred returns true, or nil if pred is
// false for all nodes. pred must be monotonic over the key order.
func (t *avlTree) search(pred func(k avlKey) bool) *avlNode {
	var best *avlNode
	n := t.root
	for n != nil {
		if pred(n.key) {
			best = n
			n = n.left
		} else {
			n = n.right
		}
	}
	return best
}

func (t *avlTree) first() *avlNode {
	n := t.root
	if n == nil {
		return nil
	}
	for n.left != nil {
		n = n.left
	}
	return n
}

func (t *avlTree) last() *avlNode {
	n := t.root
	if n == nil {
		return nil
	}
	for n.right != nil {
		n = n.right
	}
	return n
}

func (n *avlNode) next() *avlNode {
	if n.right == nil {
		// Go up left until we can go up right.
		for n.parent != nil && n.parent.right == n {
			n = n.parent
		}
		return n.parent
	}
	n = n.right
	for n.left != nil {
		n = n.left
	}
	return n
}

func (n *avlNode) prev() *avlNode {
	if n.left == nil {
		for n.parent != nil && n.parent.left == n {
			n = n.parent
		}
		return n.parent
	}
	n = n.left
	for n.right != nil {
		n = n.right
	}
	return n
}

// rebalance fixes out-of-balance nodes in the path from node to t.root.
func (t *avlTree) rebalance(node *avlNode) {
	for ; node != nil; node = node.parent {
		node.update()
		b := node.balance()
		if b > 1 {
			if node.left.balance() < 0 {
				rotateLeft(&node.left)
			}
			rotateRight(t.nodeP(node))
		} else if b < -1 {
			if node.right.balance() > 0 {
				rotateRight(&node.right)
			}
			rotateLeft(t.nodeP(node))
		}
	}
}

// nodeP returns the pointer to n from n's parent.
func (t *avlTree) nodeP(n *avlNode) **avlNode {
	if n.parent == nil {
		return &t.root
	} else if n.parent.left == n {
		return &n.parent.left
	}
	return &n.parent.right
}

func (n *avlNode) height() int {
	if n == nil {
		return 0
	}
	return n.heightCache
}

func (n *avlNode) update() {
	l, r := n.left.height(), n.right.height()
	n.heightCache = max(l, r) + 1

	n.maxEnd = n.item.to
	if n.left != nil && n.left.maxEnd > n.maxEnd {
		n.maxEnd = n.left.maxEnd
	}
	if n.right != nil && n.right.maxEnd > n.maxEnd {
		n.maxEnd = n.right.maxEnd
	}
}

func (n *avlNode) balance() int {
	return n.left.height() - n.right.height()
}

func rotateLeft(np **avlNode) {
	n := *np
	nr, nrl := n.right, n.right.left
	n.parent, n.right, nr.parent, nr.left = nr, nrl, n.parent, n
	if nrl != nil {
		nrl.parent = n
	}
	n.update()
	nr.update()
	*np = nr
}

func rotateRight(np **avlNode) {
	n := *np
	nl, nlr := n.left, n.left.right
	n.parent, n.left, nl.parent, nl.right = nl, nlr, n.parent, n
	if nlr != nil {
		nlr.parent = n
	}
	n.update()
	nl.update()
	*np = nl
}
