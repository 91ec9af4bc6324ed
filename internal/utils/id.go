package utils

import (
	"sync"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
)

var (
	folioNode     *snowflake.Node
	folioNodeOnce sync.Once
	folioNodeID   int64 = 1
)

// SetFolioNode selects the snowflake node id. It must run before the first NewFolio call.
func SetFolioNode(id int64) {
	folioNodeID = id
}

// NewFolio returns a short, time-ordered reference printed on quotes, e.g. "Q-1780291823142912".
// When the node cannot be created it falls back to a random UUID fragment.
func NewFolio() string {
	folioNodeOnce.Do(func() {
		node, err := snowflake.NewNode(folioNodeID)
		if err == nil {
			folioNode = node
		}
	})
	if folioNode == nil {
		return "Q-" + uuid.NewString()[:13]
	}
	return "Q-" + folioNode.Generate().String()
}
