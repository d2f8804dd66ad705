package repository

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/sirupsen/logrus"

	"github.com/temcen/filmtaste/internal/analysis"
)

// GraphEntityIndex resolves movie entities from the catalog graph:
//
//	(:Participant)-[:PARTICIPATED_IN {role}]->(:Movie)
//	(:Movie)-[:HAS_GENRE]->(:Genre)
//	(:Movie)-[:PRODUCED_IN]->(:Country)
type GraphEntityIndex struct {
	driver   neo4j.DriverWithContext
	database string
	logger   *logrus.Logger
}

func NewGraphEntityIndex(driver neo4j.DriverWithContext, database string, logger *logrus.Logger) *GraphEntityIndex {
	return &GraphEntityIndex{driver: driver, database: database, logger: logger}
}

func entityQuery(movieID int64, class analysis.EntityClass) (string, map[string]interface{}, error) {
	params := map[string]interface{}{"movieId": movieID}

	switch class {
	case analysis.EntityActor, analysis.EntityDirector:
		role, _ := class.Role()
		params["role"] = role
		return `
			MATCH (p:Participant)-[r:PARTICIPATED_IN]->(m:Movie {id: $movieId})
			WHERE normalize(r.role, NFC) CONTAINS $role
			RETURN DISTINCT p.id AS id
			ORDER BY id`, params, nil
	case analysis.EntityGenre:
		return `
			MATCH (m:Movie {id: $movieId})-[:HAS_GENRE]->(g:Genre)
			RETURN DISTINCT g.id AS id
			ORDER BY id`, params, nil
	case analysis.EntityCountry:
		return `
			MATCH (m:Movie {id: $movieId})-[:PRODUCED_IN]->(c:Country)
			RETURN DISTINCT c.id AS id
			ORDER BY id`, params, nil
	}
	return "", nil, fmt.Errorf("%w: %q", analysis.ErrUnknownEntityClass, class)
}

func (g *GraphEntityIndex) EntityIDsForMovie(ctx context.Context, movieID int64, class analysis.EntityClass) ([]int64, error) {
	query, params, err := entityQuery(movieID, class)
	if err != nil {
		return nil, err
	}

	session := g.driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeRead,
		DatabaseName: g.database,
	})
	defer session.Close(ctx)

	result, err := session.Run(ctx, query, params)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s of movie %d: %w", class, movieID, err)
	}

	var ids []int64
	for result.Next(ctx) {
		record := result.Record()
		id, ok := record.Values[0].(int64)
		if !ok {
			g.logger.WithFields(logrus.Fields{
				"movie_id": movieID,
				"class":    class,
				"value":    record.Values[0],
			}).Warn("Skipping graph entity with non-integer id")
			continue
		}
		ids = append(ids, id)
	}
	if err := result.Err(); err != nil {
		return nil, fmt.Errorf("failed to read %s of movie %d: %w", class, movieID, err)
	}
	return ids, nil
}
