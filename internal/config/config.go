package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Config struct {
	AppEnv   string
	LogLevel slog.Level

	MQTTBroker      string
	MQTTPort        int
	MQTTClientID    string
	MQTTUsername    string
	MQTTPassword    string
	MQTTQoS         byte
	MQTTTopicPrefix string

	// BLESource selects where advertisements come from: bluez, hci, websocket or serial.
	BLESource    string
	BLEAdapter   string
	BLEAddresses []string
	WSURL        string
	SerialPort   string
	SerialBaud   int
	FeedBuffer   int

	// DevicesFile, when set, takes precedence over the SQLite device store.
	DevicesFile string
	SQLitePath  string

	Dedup          bool
	HealthInterval time.Duration
	StaleAfter     time.Duration
	HTTPAddr       string
	DryRun         bool
}

const (
	SourceBlueZ     = "bluez"
	SourceHCI       = "hci"
	SourceWebsocket = "websocket"
	SourceSerial    = "serial"
)

func LoadFromEnv() (Config, error) {
	appEnv := strings.TrimSpace(os.Getenv("APP_ENV"))
	if appEnv == "" {
		appEnv = "dev"
	}
	switch appEnv {
	case "dev", "prod":
	default:
		return Config{}, fmt.Errorf("invalid APP_ENV %q (allowed: dev, prod)", appEnv)
	}

	logLevelStr := strings.TrimSpace(os.Getenv("LOG_LEVEL"))
	if logLevelStr == "" {
		logLevelStr = "info"
	}
	level, err := parseLogLevel(logLevelStr)
	if err != nil {
		return Config{}, err
	}

	mqttBroker := strings.TrimSpace(os.Getenv("MQTT_BROKER"))
	if mqttBroker == "" {
		mqttBroker = "localhost"
	}

	mqttPortStr := strings.TrimSpace(os.Getenv("MQTT_PORT"))
	if mqttPortStr == "" {
		mqttPortStr = "1883"
	}
	mqttPort, err := strconv.Atoi(mqttPortStr)
	if err != nil {
		return Config{}, fmt.Errorf("invalid MQTT_PORT %q: %w", mqttPortStr, err)
	}

	mqttClientID := strings.TrimSpace(os.Getenv("MQTT_CLIENT_ID"))
	if mqttClientID == "" {
		// Brokers disconnect the older client on a client id collision.
		mqttClientID = "mijia-gateway-" + uuid.NewString()[:8]
	}

	mqttQoSStr := strings.TrimSpace(os.Getenv("MQTT_QOS"))
	if mqttQoSStr == "" {
		mqttQoSStr = "1"
	}
	mqttQoS, err := strconv.ParseUint(mqttQoSStr, 10, 8)
	if err != nil || mqttQoS > 2 {
		return Config{}, fmt.Errorf("invalid MQTT_QOS %q (allowed: 0, 1, 2)", mqttQoSStr)
	}

	topicPrefix := strings.Trim(strings.TrimSpace(os.Getenv("MQTT_TOPIC_PREFIX")), "/")
	if topicPrefix == "" {
		topicPrefix = "mijia"
	}

	bleSource := strings.ToLower(strings.TrimSpace(os.Getenv("BLE_SOURCE")))
	if bleSource == "" {
		bleSource = SourceBlueZ
	}
	switch bleSource {
	case SourceBlueZ, SourceHCI, SourceWebsocket, SourceSerial:
	default:
		return Config{}, fmt.Errorf("invalid BLE_SOURCE %q (allowed: bluez, hci, websocket, serial)", bleSource)
	}

	bleAdapter := strings.TrimSpace(os.Getenv("BLE_ADAPTER"))
	if bleAdapter == "" {
		bleAdapter = "hci0"
	}

	wsURL := strings.TrimSpace(os.Getenv("WS_URL"))
	if bleSource == SourceWebsocket && wsURL == "" {
		return Config{}, fmt.Errorf("WS_URL is required when BLE_SOURCE=websocket")
	}

	serialPort := strings.TrimSpace(os.Getenv("SERIAL_PORT"))
	if serialPort == "" {
		serialPort = "/dev/ttyUSB0"
	}
	serialBaudStr := strings.TrimSpace(os.Getenv("SERIAL_BAUD"))
	if serialBaudStr == "" {
		serialBaudStr = "115200"
	}
	serialBaud, err := strconv.Atoi(serialBaudStr)
	if err != nil {
		return Config{}, fmt.Errorf("invalid SERIAL_BAUD %q: %w", serialBaudStr, err)
	}

	feedBufferStr := strings.TrimSpace(os.Getenv("FEED_BUFFER"))
	if feedBufferStr == "" {
		feedBufferStr = "64"
	}
	feedBuffer, err := strconv.Atoi(feedBufferStr)
	if err != nil {
		return Config{}, fmt.Errorf("invalid FEED_BUFFER %q: %w", feedBufferStr, err)
	}
	if feedBuffer <= 0 {
		return Config{}, fmt.Errorf("FEED_BUFFER must be positive, got %d", feedBuffer)
	}

	sqlitePath := strings.TrimSpace(os.Getenv("SQLITE_PATH"))
	if sqlitePath == "" {
		sqlitePath = "data/devices.db"
	}

	dedup, err := parseBool("DEDUP", "false")
	if err != nil {
		return Config{}, err
	}
	dryRun, err := parseBool("DRY_RUN", "false")
	if err != nil {
		return Config{}, err
	}

	healthInterval, err := parseDuration("HEALTH_INTERVAL", "60s")
	if err != nil {
		return Config{}, err
	}
	staleAfter, err := parseDuration("STALE_AFTER", "10m")
	if err != nil {
		return Config{}, err
	}
	if staleAfter <= 0 {
		return Config{}, fmt.Errorf("STALE_AFTER must be positive, got %v", staleAfter)
	}

	httpAddr, ok := os.LookupEnv("HTTP_ADDR")
	if !ok {
		httpAddr = ":8080"
	}

	return Config{
		AppEnv:          appEnv,
		LogLevel:        level,
		MQTTBroker:      mqttBroker,
		MQTTPort:        mqttPort,
		MQTTClientID:    mqttClientID,
		MQTTUsername:    strings.TrimSpace(os.Getenv("MQTT_USERNAME")),
		MQTTPassword:    os.Getenv("MQTT_PASSWORD"),
		MQTTQoS:         byte(mqttQoS),
		MQTTTopicPrefix: topicPrefix,
		BLESource:       bleSource,
		BLEAdapter:      bleAdapter,
		BLEAddresses:    splitList(os.Getenv("BLE_ADDRESSES")),
		WSURL:           wsURL,
		SerialPort:      serialPort,
		SerialBaud:      serialBaud,
		FeedBuffer:      feedBuffer,
		DevicesFile:     strings.TrimSpace(os.Getenv("DEVICES_FILE")),
		SQLitePath:      sqlitePath,
		Dedup:           dedup,
		HealthInterval:  healthInterval,
		StaleAfter:      staleAfter,
		HTTPAddr:        strings.TrimSpace(httpAddr),
		DryRun:          dryRun,
	}, nil
}

func parseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid LOG_LEVEL %q (allowed: debug, info, warn, error)", s)
	}
}

func parseBool(name, def string) (bool, error) {
	s := strings.TrimSpace(os.Getenv(name))
	if s == "" {
		s = def
	}
	v, err := strconv.ParseBool(s)
	if err != nil {
		return false, fmt.Errorf("invalid %s %q: %w", name, s, err)
	}
	return v, nil
}

func parseDuration(name, def string) (time.Duration, error) {
	s := strings.TrimSpace(os.Getenv(name))
	if s == "" {
		s = def
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", name, s, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s must not be negative, got %v", name, d)
	}
	return d, nil
}

// splitList splits a comma separated list, dropping empty entries.
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
