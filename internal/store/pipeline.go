package store

import (
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/xuxing3/JiZhang/internal/domain"
)

// ctimeField is the computed canonical-time field added ahead of every
// time-based match or sort. It mirrors timeres.Resolve: the precedence
// order here and there must stay identical, since this one decides what
// the store returns and that one decides what the process computes.
const ctimeField = "_ctime"

const localLayoutMongo = "%Y-%m-%d %H:%M"

// canonicalTimeExpr builds the $addFields expression resolving one
// canonical instant per document: time as a date, time as a string,
// ts_utc, created_at_utc, time_local in the record zone, createdAt,
// else null. $ifNull walks the candidates in order; each candidate
// yields null when its representation is absent or unparseable.
func canonicalTimeExpr(defaultTZ string) bson.M {
	tzExpr := bson.M{"$ifNull": bson.A{"$tz", defaultTZ}}

	// Strings from the web producer are ISO-ish; the bot wrote
	// "YYYY-MM-DD HH:MM". Try the generic parse first, then the padded
	// layout, then rebuild the loose bot vintages ("YYYY-M-D H:MM",
	// "YYYY/M/D, H:MM") into the padded layout and parse once more.
	timeString := bson.M{"$dateFromString": bson.M{
		"dateString": "$time",
		"timezone":   tzExpr,
		"onNull":     nil,
		"onError": bson.M{"$dateFromString": bson.M{
			"dateString": "$time",
			"format":     localLayoutMongo,
			"timezone":   tzExpr,
			"onNull":     nil,
			"onError":    looseTimeString(tzExpr),
		}},
	}}

	timeLocal := bson.M{"$dateFromString": bson.M{
		"dateString": "$time_local",
		"format":     localLayoutMongo,
		"timezone":   tzExpr,
		"onNull":     nil,
		"onError": bson.M{"$dateFromString": bson.M{
			"dateString": "$time_local",
			"timezone":   tzExpr,
			"onNull":     nil,
			"onError":    nil,
		}},
	}}

	return bson.M{"$ifNull": bson.A{
		typedOrNull("$time", "date"),
		bson.M{"$cond": bson.A{isType("$time", "string"), timeString, nil}},
		typedOrNull("$ts_utc", "date"),
		typedOrNull("$created_at_utc", "date"),
		bson.M{"$cond": bson.A{isType("$time_local", "string"), timeLocal, nil}},
		typedOrNull("$createdAt", "date"),
		nil,
	}}
}

// looseTimeRegex admits the non-padded layouts the bot wrote before it
// switched to the padded one, with either separator and an optional
// comma after the date.
const looseTimeRegex = `^\d{4}[-/]\d{1,2}[-/]\d{1,2},? \d{1,2}:\d{2}$`

// looseTimeString parses the loose string layouts $dateFromString cannot
// take directly: it is strict about zero padding, so the string is taken
// apart, each component padded, and the padded layout parsed. Guarded by
// a $regexMatch so non-matching strings fall through to null instead of
// aborting the aggregation.
func looseTimeString(tzExpr bson.M) bson.M {
	normalized := bson.M{"$replaceAll": bson.M{
		"input": bson.M{"$replaceAll": bson.M{
			"input":       "$time",
			"find":        "/",
			"replacement": "-",
		}},
		"find":        ",",
		"replacement": "",
	}}
	return bson.M{"$cond": bson.A{
		bson.M{"$regexMatch": bson.M{"input": "$time", "regex": looseTimeRegex}},
		bson.M{"$let": bson.M{
			"vars": bson.M{"w": bson.M{"$split": bson.A{normalized, " "}}},
			"in": bson.M{"$let": bson.M{
				"vars": bson.M{
					"d": bson.M{"$split": bson.A{elemAt("$$w", 0), "-"}},
					"c": bson.M{"$split": bson.A{elemAt("$$w", 1), ":"}},
				},
				"in": bson.M{"$dateFromString": bson.M{
					"dateString": bson.M{"$concat": bson.A{
						elemAt("$$d", 0), "-", pad2(elemAt("$$d", 1)), "-", pad2(elemAt("$$d", 2)),
						" ", pad2(elemAt("$$c", 0)), ":", elemAt("$$c", 1),
					}},
					"format":   localLayoutMongo,
					"timezone": tzExpr,
					"onNull":   nil,
					"onError":  nil,
				}},
			}},
		}},
		nil,
	}}
}

func elemAt(arr any, i int) bson.M {
	return bson.M{"$arrayElemAt": bson.A{arr, i}}
}

func pad2(e any) bson.M {
	return bson.M{"$cond": bson.A{
		bson.M{"$eq": bson.A{bson.M{"$strLenCP": e}, 1}},
		bson.M{"$concat": bson.A{"0", e}},
		e,
	}}
}

func isType(field, bsonType string) bson.M {
	return bson.M{"$eq": bson.A{bson.M{"$type": field}, bsonType}}
}

func typedOrNull(field, bsonType string) bson.M {
	return bson.M{"$cond": bson.A{isType(field, bsonType), field, nil}}
}

// scopeMatch matches one chat scope. Historical records predating the
// chat_id field belong to every scope, as in the original system.
func scopeMatch(chatID int64) bson.M {
	return bson.M{"$or": bson.A{
		bson.M{"chat_id": chatID},
		bson.M{"chat_id": bson.M{"$exists": false}},
	}}
}

// textMatch matches q as a literal, case-insensitive substring of
// payee, category or note.
func textMatch(q string) bson.M {
	re := primitive.Regex{Pattern: regexp.QuoteMeta(q), Options: "i"}
	return bson.M{"$or": bson.A{
		bson.M{"payee": re},
		bson.M{"category": re},
		bson.M{"note": re},
	}}
}

// listPipeline builds the List aggregation: scope, canonical time,
// range, text filter, deterministic sort, then a $facet producing the
// page and the total count in one pass.
func listPipeline(f ListFilter, defaultTZ string) []bson.M {
	stages := baseStages(f.ChatID, f.Start, f.End, defaultTZ)

	if f.Query != "" {
		stages = append(stages, bson.M{"$match": textMatch(f.Query)})
	}

	// _id descending breaks ties between same-instant records in
	// insertion order, since ObjectIDs are time-prefixed.
	stages = append(stages,
		bson.M{"$sort": bson.D{{Key: ctimeField, Value: -1}, {Key: "_id", Value: -1}}},
		bson.M{"$facet": bson.M{
			"data": []bson.M{
				{"$skip": (f.Page - 1) * f.PageSize},
				{"$limit": f.PageSize},
				{"$project": bson.M{ctimeField: 0}},
			},
			"total": []bson.M{{"$count": "count"}},
		}},
	)
	return stages
}

// summaryPipeline builds the category-summary aggregation. Records with
// a null or missing category fold into the unknown-category sentinel.
func summaryPipeline(f SummaryFilter, defaultTZ string) []bson.M {
	stages := baseStages(f.ChatID, f.Start, f.End, defaultTZ)
	stages = append(stages,
		bson.M{"$group": bson.M{
			"_id":   bson.M{"$ifNull": bson.A{"$category", domain.CategoryUnknown}},
			"total": bson.M{"$sum": "$amount"},
			"count": bson.M{"$sum": 1},
		}},
		bson.M{"$sort": bson.D{{Key: "total", Value: -1}}},
	)
	return stages
}

// baseStages is the shared prefix: scope match (cheap, index-friendly,
// so it goes first), canonical-time computation, then the range match.
// Null canonical times never satisfy a bounded range because Mongo
// comparison operators do not match across types.
func baseStages(chatID *int64, start, end *time.Time, defaultTZ string) []bson.M {
	var stages []bson.M
	if chatID != nil {
		stages = append(stages, bson.M{"$match": scopeMatch(*chatID)})
	}
	stages = append(stages, bson.M{"$addFields": bson.M{ctimeField: canonicalTimeExpr(defaultTZ)}})

	rangeDoc := bson.M{}
	if start != nil {
		rangeDoc["$gte"] = *start
	}
	if end != nil {
		rangeDoc["$lte"] = *end
	}
	if len(rangeDoc) > 0 {
		stages = append(stages, bson.M{"$match": bson.M{ctimeField: rangeDoc}})
	}
	return stages
}
