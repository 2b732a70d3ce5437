package config

import (
	"flag"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
)

type Config struct {
	DebugMode bool   `env:"DEBUG_MODE"` //Режим дебага
	DataDir   string `env:"DATA_DIR"`   // Папка с файлами макросов и хоткеев

	MacroFile   string `env:"MACRO_FILE"`   // CSV с сохранёнными макросами; относительный путь считается от DataDir
	HotkeysFile string `env:"HOTKEYS_FILE"` // JSON с привязками хоткеев; относительный путь считается от DataDir

	// Запись и воспроизведение
	DefaultRepeat     int           `env:"DEFAULT_REPEAT"`      // Число проходов для хоткея запуска; 0: бесконечно
	InputBuffer       int           `env:"INPUT_BUFFER"`        // Размер очереди сырых событий от хука
	MouseMoveInterval time.Duration `env:"MOUSE_MOVE_INTERVAL"` // Минимальный интервал между записанными перемещениями мыши; 0: писать все
	RebindTimeout     time.Duration `env:"REBIND_TIMEOUT"`      // Сколько ждать новую комбинацию при переназначении
	CheckBounds       bool          `env:"PLAYBACK_CHECK_BOUNDS"`

	Sound  SoundConfig
	Bridge BridgeConfig
}

// SoundConfig звуковые сигналы начала записи и воспроизведения.
type SoundConfig struct {
	Enabled    bool    `env:"SOUND_ENABLED"`
	RecordPath string  `env:"SOUND_RECORD_PATH"`
	PlayPath   string  `env:"SOUND_PLAY_PATH"`
	VolumeDB   float64 `env:"SOUND_VOLUME_DB"` // 0: без изменений
}

// BridgeConfig websocket-мост для внешнего UI.
type BridgeConfig struct {
	Enabled   bool   `env:"BRIDGE_ENABLED"`    // Главный флаг включения/выключения
	BindAddr  string `env:"BRIDGE_BIND_ADDR"`  // Адрес слушателя, напр. 127.0.0.1:3001
	AuthToken string `env:"BRIDGE_AUTH_TOKEN"` // Токен авторизации (опционально)
}

// Defaults возвращает конфигурацию с предустановленными значениями по умолчанию.
// Эти значения перекрываются .env, переменными окружения и флагами CLI.
func Defaults() *Config {
	return &Config{
		DebugMode:         false,
		DataDir:           "data",
		MacroFile:         "macros.csv",
		HotkeysFile:       "hotkeys.json",
		DefaultRepeat:     1,
		InputBuffer:       1024,
		MouseMoveInterval: 10 * time.Millisecond,
		RebindTimeout:     10 * time.Second,
		CheckBounds:       true,
		Sound: SoundConfig{
			Enabled: true,
			// пустые пути: sound/record.mp3 и sound/play.mp3 рядом с бинарём
			RecordPath: "",
			PlayPath:   "",
		},
		Bridge: BridgeConfig{
			Enabled:  false,
			BindAddr: "127.0.0.1:3001",
		},
	}
}

// NewConfig загружает конфигурацию приложения.
func NewConfig() *Config {
	_ = godotenv.Load()

	// Стартуем с дефолтов, затем перекрываем .env/окружением и флагами
	cfg := Defaults()
	_ = env.Parse(cfg)

	_ = cfg.BindFlags(flag.CommandLine, os.Args[1:])
	return cfg
}

// BindFlags регистрирует флаги поверх текущих значений и разбирает args.
func (cfg *Config) BindFlags(fs *flag.FlagSet, args []string) error {
	fs.BoolVar(&cfg.DebugMode, "debug-mode", cfg.DebugMode, "включить режим дебага для отображения до инфы")
	fs.StringVar(&cfg.DataDir, "data-dir", cfg.DataDir, "папка с файлами макросов и хоткеев")
	fs.StringVar(&cfg.MacroFile, "macro-file", cfg.MacroFile, "CSV-файл с макросами")
	fs.StringVar(&cfg.HotkeysFile, "hotkeys-file", cfg.HotkeysFile, "JSON-файл с привязками хоткеев")
	// Запись и воспроизведение
	fs.IntVar(&cfg.DefaultRepeat, "default-repeat", cfg.DefaultRepeat, "число проходов при запуске хоткеем (0 = до остановки)")
	fs.IntVar(&cfg.InputBuffer, "input-buffer", cfg.InputBuffer, "размер очереди событий ввода")
	fs.DurationVar(&cfg.MouseMoveInterval, "mouse-move-interval", cfg.MouseMoveInterval, "минимальный интервал между записанными перемещениями мыши, напр. 10ms")
	fs.DurationVar(&cfg.RebindTimeout, "rebind-timeout", cfg.RebindTimeout, "таймаут ожидания новой комбинации, напр. 10s")
	fs.BoolVar(&cfg.CheckBounds, "playback-check-bounds", cfg.CheckBounds, "пропускать события мыши за пределами экранов")
	// Звук
	fs.BoolVar(&cfg.Sound.Enabled, "sound-enabled", cfg.Sound.Enabled, "проигрывать звук при старте записи и воспроизведения")
	fs.StringVar(&cfg.Sound.RecordPath, "sound-record-path", cfg.Sound.RecordPath, "звук начала записи (mp3 или wav)")
	fs.StringVar(&cfg.Sound.PlayPath, "sound-play-path", cfg.Sound.PlayPath, "звук начала воспроизведения (mp3 или wav)")
	fs.Float64Var(&cfg.Sound.VolumeDB, "sound-volume-db", cfg.Sound.VolumeDB, "изменение громкости сигналов в дБ")
	// Bridge
	fs.BoolVar(&cfg.Bridge.Enabled, "bridge-enabled", cfg.Bridge.Enabled, "включить websocket-мост для UI")
	fs.StringVar(&cfg.Bridge.BindAddr, "bridge-bind-addr", cfg.Bridge.BindAddr, "адрес для прослушивания моста (напр. 127.0.0.1:3001)")
	fs.StringVar(&cfg.Bridge.AuthToken, "bridge-auth-token", cfg.Bridge.AuthToken, "токен авторизации моста (опционально)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg.normalize()
	return nil
}

func (cfg *Config) normalize() {
	if cfg.DefaultRepeat < 0 {
		cfg.DefaultRepeat = 0
	}
	if cfg.InputBuffer <= 0 {
		cfg.InputBuffer = Defaults().InputBuffer
	}
	if cfg.MouseMoveInterval < 0 {
		cfg.MouseMoveInterval = 0
	}
	if cfg.RebindTimeout <= 0 {
		cfg.RebindTimeout = Defaults().RebindTimeout
	}
}

// MacroPath: полный путь к CSV с макросами.
func (cfg *Config) MacroPath() string { return cfg.resolve(cfg.MacroFile) }

// HotkeysPath: полный путь к JSON с хоткеями.
func (cfg *Config) HotkeysPath() string { return cfg.resolve(cfg.HotkeysFile) }

func (cfg *Config) resolve(p string) string {
	if p == "" || filepath.IsAbs(p) || cfg.DataDir == "" {
		return p
	}
	return filepath.Join(cfg.DataDir, p)
}
