package cmd

import (
	"errors"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	configVersionKey     = "version"
	currentConfigVersion = 1

	configBaseName   = "refract"
	configFileName   = configBaseName + ".yaml"
	configFolderPath = "."

	outputFlagName      = "output"
	runParallelFlagName = "parallel"
	skipValidateFlag    = "skip-validation"
	backendFlagName     = "backend"
	minFrequencyFlag    = "min-frequency"
	oracleFlagName      = "oracle"

	runParallelConfigKey = "run.parallel"

	minFrequencyKey    = "mine.min_frequency"
	minSizeKey         = "mine.min_size"
	maxSizeKey         = "mine.max_size"
	maxHolesKey        = "mine.max_holes"
	skeletonDepthKey   = "mine.skeleton_depth"
	backendConfigKey   = "mine.backend"
	externalCommandKey = "mine.external_command"

	oracleCommandKey   = "validate.oracle"
	validateRetriesKey = "validate.retries"
	validateTimeoutKey = "validate.timeout"
	skipValidateKey    = "validate.skip"

	backendBuiltin  = "builtin"
	backendExternal = "external"

	defaultReportsDir      = ".refract-reports"
	defaultRunParallel     = 1
	defaultMinFrequency    = 2
	defaultMinSize         = 3
	defaultMaxSize         = 20
	defaultMaxHoles        = 3
	defaultSkeletonDepth   = 2
	defaultValidateRetries = 3
	defaultValidateTimeout = 30 * time.Second

	envPrefix = "REFRACT"

	logFilenameKey   = "log.filename"
	logLevelKey      = "log.level"
	logVerboseKey    = "log.verbose"
	logMaxSizeKey    = "log.max_size"
	logMaxBackupsKey = "log.max_backups"
	logMaxAgeKey     = "log.max_age"
	logCompressKey   = "log.compress"

	defaultLogFilename   = ".refract.log"
	defaultLogLevel      = int(slog.LevelInfo)
	defaultLogVerbose    = false
	defaultLogMaxSize    = 10
	defaultLogMaxBackups = 3
	defaultLogMaxAge     = 28
	defaultLogCompress   = true
)

var globalLogger *slog.Logger

func init() {
	viper.SetConfigName(configBaseName)
	viper.SetConfigType("yaml")
	viper.AddConfigPath(configFolderPath)
	viper.SetConfigFile(filepath.Join(configFolderPath, configFileName))
	viper.AutomaticEnv()
	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))

	viper.SetDefault(configVersionKey, currentConfigVersion)
	viper.SetDefault(outputFlagName, defaultReportsDir)
	viper.SetDefault(runParallelConfigKey, defaultRunParallel)

	viper.SetDefault(minFrequencyKey, defaultMinFrequency)
	viper.SetDefault(minSizeKey, defaultMinSize)
	viper.SetDefault(maxSizeKey, defaultMaxSize)
	viper.SetDefault(maxHolesKey, defaultMaxHoles)
	viper.SetDefault(skeletonDepthKey, defaultSkeletonDepth)
	viper.SetDefault(backendConfigKey, backendBuiltin)
	viper.SetDefault(externalCommandKey, []string{})

	viper.SetDefault(oracleCommandKey, []string{})
	viper.SetDefault(validateRetriesKey, defaultValidateRetries)
	viper.SetDefault(validateTimeoutKey, int64(defaultValidateTimeout.Seconds()))
	viper.SetDefault(skipValidateKey, false)

	// Logging defaults (used by config/env and as fallbacks for flags).
	viper.SetDefault(logFilenameKey, defaultLogFilename)
	viper.SetDefault(logLevelKey, defaultLogLevel)
	viper.SetDefault(logVerboseKey, defaultLogVerbose)
	viper.SetDefault(logMaxSizeKey, defaultLogMaxSize)
	viper.SetDefault(logMaxBackupsKey, defaultLogMaxBackups)
	viper.SetDefault(logMaxAgeKey, defaultLogMaxAge)
	viper.SetDefault(logCompressKey, defaultLogCompress)

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return
		}

		return
	}
}

func parseSlogLevel(value string, defaultLevel slog.Level) slog.Level {
	level := strings.ToLower(strings.TrimSpace(value))
	if level == "" {
		return defaultLevel
	}

	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}

	// Allow numeric slog levels as well (e.g. -4 for debug).
	if n, err := strconv.Atoi(level); err == nil {
		return slog.Level(n)
	}

	return defaultLevel
}

// configureLogger configures the global slog logger.
//
// By default it logs at Info; if verbose is true it logs at Debug.
func configureLogger(logPath string, verbose bool) {
	if strings.TrimSpace(logPath) == "" {
		logPath = viper.GetString(logFilenameKey)
	}

	if strings.TrimSpace(logPath) == "" {
		logPath = defaultLogFilename
	}

	var logLevel slog.Level
	if verbose {
		logLevel = slog.LevelDebug
	} else {
		logLevel = parseSlogLevel(viper.GetString(logLevelKey), slog.LevelInfo)
	}

	logWriter := &lumberjack.Logger{
		Filename:   logPath,
		MaxSize:    viper.GetInt(logMaxSizeKey),
		MaxBackups: viper.GetInt(logMaxBackupsKey),
		MaxAge:     viper.GetInt(logMaxAgeKey),
		Compress:   viper.GetBool(logCompressKey),
	}

	handler := slog.NewTextHandler(logWriter, &slog.HandlerOptions{
		AddSource: true,
		Level:     logLevel,
	})

	globalLogger = slog.New(handler)
	slog.SetDefault(globalLogger)
}

func validateTimeout() time.Duration {
	seconds := viper.GetInt64(validateTimeoutKey)
	if seconds <= 0 {
		return defaultValidateTimeout
	}

	return time.Duration(seconds) * time.Second
}
