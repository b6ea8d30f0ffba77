package storage

import (
	_ "embed"
)

const (
	upsertPacketSQL = `
INSERT OR REPLACE INTO packets (
    packet_id,
    ts_ms,
    ts_iso,
    magic,
    battery_mv,
    batt_v,
    batt_current_ma,
    soc_percent,
    temp_centi,
    temp_c,
    solar_current_ma,
    altitude_m,
    error_flags,
    recv_crc,
    crc_ok,
    framing_ok,
    validation_flags,
    missing_packets,
    anomaly_flag,
    anomaly_reasons,
    power_mw,
    delta_batt_v,
    delta_temp_c,
    time_delta_ms)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	selectLatestPacketSQL = `
SELECT
    packet_id,
    ts_ms,
    batt_v,
    temp_c
FROM packets
ORDER BY packet_id DESC
LIMIT 1`

	selectPacketsSinceSQL = `
SELECT
    packet_id,
    ts_ms,
    battery_mv,
    batt_current_ma,
    power_mw,
    temp_centi
FROM packets
WHERE
    packet_id >= ?
ORDER BY packet_id ASC`

	selectRecentPacketsSQL = `
SELECT
    packet_id,
    ts_ms,
    battery_mv,
    batt_current_ma,
    power_mw,
    temp_centi
FROM (SELECT * FROM packets ORDER BY packet_id DESC LIMIT ?)
ORDER BY packet_id ASC`

	insertAnomalySQL = `
INSERT OR IGNORE INTO anomalies (
    packet_id,
    ts_ms,
    ts_iso,
    tag,
    severity,
    details,
    created_ms)
VALUES (?, ?, ?, ?, ?, ?, ?)`

	selectRecentAnomaliesSQL = `
SELECT
    packet_id,
    ts_ms,
    ts_iso,
    tag,
    severity,
    details,
    created_ms
FROM anomalies
ORDER BY created_ms DESC, id DESC
LIMIT ?`

	selectTrendSQL = `
SELECT
    ts_ms,
    batt_v,
    temp_c,
    power_mw
FROM packets
WHERE
    ts_ms BETWEEN ? AND ?
ORDER BY ts_ms ASC`
)

//go:embed schema.sql
var initSchemaSQL string
