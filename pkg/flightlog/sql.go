package flightlog

import (
	_ "embed"
)

//go:embed schema.sql
var initSchemaSQL string

const (
	insertSessionSQL = `
INSERT INTO sessions (started_at, endpoint)
VALUES (?, ?)`

	selectSessionsSQL = `
SELECT
    id,
    started_at,
    endpoint
FROM sessions
ORDER BY id`

	insertFrameSQL = `
INSERT INTO frames (session_id,
                    received_at,
                    pos_x, pos_y, pos_z,
                    rot_x, rot_y, rot_z,
                    raw)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	selectFramesSQL = `
SELECT
    received_at,
    pos_x, pos_y, pos_z,
    rot_x, rot_y, rot_z,
    raw
FROM frames
WHERE session_id = ?
ORDER BY id
LIMIT ?`

	countFramesSQL = `
SELECT COUNT(*) FROM frames WHERE session_id = ?`
)
