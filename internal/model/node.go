package model

// UnknownTitle is the title used when a page has no heading and the
// caller did not supply one.
const UnknownTitle = "Unknown Title"

// CrawlNode is one confirmed page of the site tree.
// A node is created as soon as its URL is accepted and fetched (or recorded as
// an unreachable leaf); Children is filled after every descent into the page
// has finished and is not modified afterwards.
type CrawlNode struct {
	// Title is the link text that led to the page, or the page heading for
	// the root of a crawl.
	Title string `json:"title"`

	// URL is the absolute URL of the page.
	URL string `json:"url"`

	// Children are the child pages in the order their links appear.
	Children []*CrawlNode `json:"children"`
}

// NewCrawlNode returns a node with no children.
func NewCrawlNode(title, url string) *CrawlNode {
	return &CrawlNode{
		Title:    title,
		URL:      url,
		Children: make([]*CrawlNode, 0),
	}
}

// AddChild appends a child node.
func (n *CrawlNode) AddChild(child *CrawlNode) {
	n.Children = append(n.Children, child)
}

// Walk visits the tree in pre-order, passing each node with its depth
// relative to n (n itself has depth 0). Returning false from fn stops the walk.
func (n *CrawlNode) Walk(fn func(node *CrawlNode, depth int) bool) {
	n.walk(0, fn)
}

func (n *CrawlNode) walk(depth int, fn func(node *CrawlNode, depth int) bool) bool {
	if n == nil {
		return true
	}
	if !fn(n, depth) {
		return false
	}
	for _, child := range n.Children {
		if !child.walk(depth+1, fn) {
			return false
		}
	}
	return true
}

// Count returns the number of nodes in the tree rooted at n.
func (n *CrawlNode) Count() int {
	count := 0
	n.Walk(func(_ *CrawlNode, _ int) bool {
		count++
		return true
	})
	return count
}

// MaxDepth returns the depth of the deepest node below n (0 for a leaf).
func (n *CrawlNode) MaxDepth() int {
	deepest := 0
	n.Walk(func(_ *CrawlNode, depth int) bool {
		if depth > deepest {
			deepest = depth
		}
		return true
	})
	return deepest
}

// LinkCandidate is a child link found on a page.
// It is produced by the extractor and consumed by the spider; it is never
// stored.
type LinkCandidate struct {
	// Title is the trimmed visible text of the anchor.
	Title string

	// URL is the resolved absolute URL.
	URL string
}
