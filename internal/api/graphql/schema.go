package graphql

import (
	"github.com/vektah/gqlparser/v2"
	"github.com/vektah/gqlparser/v2/ast"
)

// Schema is the SDL served at /graphql/schema. Queries are validated
// against it before execution.
const Schema = `scalar Time

enum IndexType {
  OSM
  COSMOGONY
  BANO
  OPENADDRESSES
}

enum StatusKind {
  NOT_AVAILABLE
  RUNNING
  AVAILABLE
  ERROR
}

type IndexStatus {
  kind: StatusKind!
  startedAt: Time
  builtAt: Time
  documentCount: Int
  reason: String
  failedAt: Time
}

type Index {
  id: ID!
  indexType: IndexType!
  dataSource: String!
  region: String!
  status: IndexStatus!
  createdAt: Time!
  updatedAt: Time!
}

input DeclareIndexInput {
  indexType: IndexType!
  dataSource: String!
  region: String!
  force: Boolean = false
}

type Query {
  "indexes lists declared indexes, optionally narrowed by type, region or status."
  indexes(indexType: IndexType, region: String, status: StatusKind): [Index!]!

  "index returns one declared index, or null when the id is unknown."
  index(id: ID!): Index
}

type Mutation {
  "declareIndex registers an index and starts a build unless one is already running or built."
  declareIndex(input: DeclareIndexInput!): Index!

  "forceReset cancels any running build and returns the index to NOT_AVAILABLE."
  forceReset(id: ID!): Index!
}
`

var parsedSchema = gqlparser.MustLoadSchema(&ast.Source{
	Name:  "geodex.graphql",
	Input: Schema,
})
