package flowtide

import "github.com/flowtidehq/flowtide/id"

// ID is the primary identifier type for all Flowtide entities.
type ID = id.ID

// Prefix identifies the entity type encoded in a TypeID.
type Prefix = id.Prefix
