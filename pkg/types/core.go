package types

import "time"

// BlockType classifies a core memory block.
type BlockType string

// Core memory block types
const (
	BlockTypePersona     BlockType = "persona"
	BlockTypeUserProfile BlockType = "user_profile"
)

// ValidBlockTypes contains all valid core memory block types.
var ValidBlockTypes = []BlockType{
	BlockTypePersona,
	BlockTypeUserProfile,
}

// IsValidBlockType checks if the given value is a valid block type.
func IsValidBlockType(t BlockType) bool {
	for _, valid := range ValidBlockTypes {
		if t == valid {
			return true
		}
	}
	return false
}

// CoreMemoryOp is an operation on a core memory block.
type CoreMemoryOp string

// Core memory operations
const (
	CoreMemoryAppend  CoreMemoryOp = "append"
	CoreMemoryReplace CoreMemoryOp = "replace"
	CoreMemoryRemove  CoreMemoryOp = "remove"
)

// ValidCoreMemoryOps contains all valid core memory operations.
var ValidCoreMemoryOps = []CoreMemoryOp{
	CoreMemoryAppend,
	CoreMemoryReplace,
	CoreMemoryRemove,
}

// IsValidCoreMemoryOp checks if the given value is a valid core memory
// operation.
func IsValidCoreMemoryOp(op CoreMemoryOp) bool {
	for _, valid := range ValidCoreMemoryOps {
		if op == valid {
			return true
		}
	}
	return false
}

// MaxCoreMemoryChars is the content cap for a core memory block. Overflow
// keeps the leading characters, not the tail.
const MaxCoreMemoryChars = 5000

// DefaultBlockKey is used when the caller does not name a block key.
const DefaultBlockKey = "default"

// CoreMemoryBlock is an always-available mutable memory block, unique per
// (block_type, block_key) pair.
type CoreMemoryBlock struct {
	ID        string    `json:"id"`
	BlockType BlockType `json:"block_type"`
	BlockKey  string    `json:"block_key"`
	Content   string    `json:"content"`
	UpdatedAt time.Time `json:"updated_at"`
}
