package driver

import "github.com/agenthands/graphmerge/internal/core/model"

// Every merged vertex carries the Vertex node label; its element label lives in
// the _label property so dedup indices can be declared on a single label.
// Edge labels map onto relationship types.
const (
	vertexNodeLabel = "Vertex"
	labelProperty   = model.PropLabel
)

const (
	AddVertexQuery = `
		CREATE (n:Vertex {_label: $label})
		RETURN id(n) AS id
	`

	// %s is the escaped relationship type.
	AddEdgeQueryTemplate = `
		MATCH (o:Vertex) WHERE id(o) = $out
		MATCH (i:Vertex) WHERE id(i) = $in
		CREATE (o)-[e:%s]->(i)
		RETURN id(e) AS id
	`

	// %s is the conjunction of "n.`field` IN $pN" predicates.
	QueryVerticesTemplate = `
		MATCH (n:Vertex)
		WHERE %s
		RETURN id(n) AS id, properties(n) AS props
	`

	GetVertexPropertiesQuery = `
		MATCH (n:Vertex) WHERE id(n) = $id
		RETURN properties(n) AS props
	`

	GetEdgePropertiesQuery = `
		MATCH ()-[e]->() WHERE id(e) = $id
		RETURN properties(e) AS props
	`

	SetVertexPropertiesQuery = `
		MATCH (n:Vertex) WHERE id(n) = $id
		SET n += $props
	`

	SetEdgePropertiesQuery = `
		MATCH ()-[e]->() WHERE id(e) = $id
		SET e += $props
	`

	IncidentEdgesQuery = `
		MATCH (n:Vertex)-[e]-() WHERE id(n) = $id
		RETURN DISTINCT id(e) AS id, type(e) AS label,
			id(startNode(e)) AS out, id(endNode(e)) AS in,
			properties(e) AS props
	`
)
