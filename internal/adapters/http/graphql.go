package http

import (
	"encoding/json"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/graphql-go/graphql"

	"github.com/samirrijal/fenceline/internal/core/domain"
)

// buildSchema creates the GraphQL schema wired to our services.
func buildSchema(deps *Dependencies) (graphql.Schema, error) {
	geoPointType := graphql.NewObject(graphql.ObjectConfig{
		Name: "GeoPoint",
		Fields: graphql.Fields{
			"lat": &graphql.Field{Type: graphql.Float},
			"lon": &graphql.Field{Type: graphql.Float},
		},
	})

	geofenceType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Geofence",
		Fields: graphql.Fields{
			"id":         &graphql.Field{Type: graphql.String},
			"title":      &graphql.Field{Type: graphql.String},
			"type":       &graphql.Field{Type: graphql.String},
			"created_at": &graphql.Field{Type: graphql.DateTime},
			"updated_at": &graphql.Field{Type: graphql.DateTime},
			"boundary": &graphql.Field{
				Type:        graphql.String,
				Description: "Boundary geometry as a GeoJSON string",
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					var fence domain.Geofence
					switch src := p.Source.(type) {
					case domain.Geofence:
						fence = src
					case *domain.Geofence:
						fence = *src
					default:
						return nil, nil
					}
					if fence.Boundary == nil {
						return nil, nil
					}
					data, err := json.Marshal(fence.Boundary)
					if err != nil {
						return nil, err
					}
					return string(data), nil
				},
			},
		},
	})

	vehicleType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Vehicle",
		Fields: graphql.Fields{
			"imei":          &graphql.Field{Type: graphql.String},
			"label":         &graphql.Field{Type: graphql.String},
			"last_location": &graphql.Field{Type: geoPointType},
			"last_seen":     &graphql.Field{Type: graphql.DateTime},
			"created_at":    &graphql.Field{Type: graphql.DateTime},
		},
	})

	eventType := graphql.NewObject(graphql.ObjectConfig{
		Name: "GeofenceEvent",
		Fields: graphql.Fields{
			"id":             &graphql.Field{Type: graphql.String},
			"geofence_id":    &graphql.Field{Type: graphql.String},
			"geofence_title": &graphql.Field{Type: graphql.String},
			"imei":           &graphql.Field{Type: graphql.String},
			"type":           &graphql.Field{Type: graphql.String},
			"location":       &graphql.Field{Type: geoPointType},
			"occurred_at":    &graphql.Field{Type: graphql.DateTime},
		},
	})

	queryType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Query",
		Fields: graphql.Fields{
			"geofences": &graphql.Field{
				Type:        graphql.NewList(geofenceType),
				Description: "List geofences, optionally filtered by title",
				Args: graphql.FieldConfigArgument{
					"q":      &graphql.ArgumentConfig{Type: graphql.String, DefaultValue: ""},
					"offset": &graphql.ArgumentConfig{Type: graphql.Int, DefaultValue: 0},
					"limit":  &graphql.ArgumentConfig{Type: graphql.Int, DefaultValue: 20},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					q := p.Args["q"].(string)
					offset := p.Args["offset"].(int)
					limit := p.Args["limit"].(int)
					fences, _, err := deps.Geofences.List(p.Context, q, offset, limit)
					return fences, err
				},
			},
			"geofence": &graphql.Field{
				Type:        geofenceType,
				Description: "Get a geofence by ID",
				Args: graphql.FieldConfigArgument{
					"id": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					id := p.Args["id"].(string)
					return deps.Geofences.Get(p.Context, id)
				},
			},
			"lookup": &graphql.Field{
				Type:        graphql.NewList(geofenceType),
				Description: "Geofences covering a point",
				Args: graphql.FieldConfigArgument{
					"lat": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Float)},
					"lon": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Float)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					lat := p.Args["lat"].(float64)
					lon := p.Args["lon"].(float64)
					return deps.Geofences.Lookup(p.Context, lat, lon)
				},
			},
			"vehicles": &graphql.Field{
				Type:        graphql.NewList(vehicleType),
				Description: "List tracked vehicles",
				Args: graphql.FieldConfigArgument{
					"limit": &graphql.ArgumentConfig{Type: graphql.Int, DefaultValue: 100},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					limit := p.Args["limit"].(int)
					return deps.Vehicles.List(p.Context, limit)
				},
			},
			"vehicle": &graphql.Field{
				Type:        vehicleType,
				Description: "Get a vehicle by IMEI",
				Args: graphql.FieldConfigArgument{
					"imei": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					imei := p.Args["imei"].(string)
					return deps.Vehicles.Get(p.Context, imei)
				},
			},
			"recentEvents": &graphql.Field{
				Type:        graphql.NewList(eventType),
				Description: "Latest geofence events across all fences",
				Args: graphql.FieldConfigArgument{
					"limit": &graphql.ArgumentConfig{Type: graphql.Int, DefaultValue: 50},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					limit := p.Args["limit"].(int)
					return deps.Events.Recent(p.Context, limit)
				},
			},
			"geofenceEvents": &graphql.Field{
				Type:        graphql.NewList(eventType),
				Description: "Events for one geofence",
				Args: graphql.FieldConfigArgument{
					"geofence_id": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
					"limit":       &graphql.ArgumentConfig{Type: graphql.Int, DefaultValue: 50},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					id := p.Args["geofence_id"].(string)
					limit := p.Args["limit"].(int)
					return deps.Events.ListByGeofence(p.Context, id, time.Time{}, limit)
				},
			},
		},
	})

	return graphql.NewSchema(graphql.SchemaConfig{
		Query: queryType,
	})
}

// GraphQLHandler serves the GraphQL endpoint.
func GraphQLHandler(deps *Dependencies) fiber.Handler {
	schema, err := buildSchema(deps)
	if err != nil {
		// This would be a programming error in the schema definition
		panic("graphql schema build: " + err.Error())
	}

	type gqlRequest struct {
		Query         string                 `json:"query"`
		OperationName string                 `json:"operationName"`
		Variables     map[string]interface{} `json:"variables"`
	}

	return func(c *fiber.Ctx) error {
		var req gqlRequest
		if err := c.BodyParser(&req); err != nil {
			return c.Status(400).JSON(fiber.Map{"error": "invalid request body"})
		}

		result := graphql.Do(graphql.Params{
			Schema:         schema,
			RequestString:  req.Query,
			VariableValues: req.Variables,
			OperationName:  req.OperationName,
			Context:        c.Context(),
		})

		return c.JSON(result)
	}
}
