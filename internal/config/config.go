package config

import "time"

type Config struct {
	Environment Environment
	Log         Log
	HTTP        HTTPServer
	BaseURL     string `env:"BASE_URL" envDefault:"http://localhost:8080"`
	DatabaseURL string `env:"DATABASE_URL" envDefault:"groupbuy.db"`
	RedisAddr   string `env:"REDIS_ADDR"`
	JWTSecret   string `env:"JWT_SECRET"`

	Zarinpal Zarinpal `envPrefix:"ZARINPAL_"`
	SMS      SMS      `envPrefix:"SMS_"`
	Sweeper  Sweeper  `envPrefix:"SWEEP_"`
}

type Zarinpal struct {
	BaseApiURL  string `env:"BASE_API_URL" envDefault:"https://payment.zarinpal.com/pg/v4/payment"`
	StartPayURL string `env:"START_PAY_URL" envDefault:"https://payment.zarinpal.com/pg/StartPay"`
	MerchantID  string `env:"MERCHANT_ID"`
}

type SMS struct {
	BaseApiURL string `env:"BASE_API_URL"`
	APIKey     string `env:"API_KEY"`
	LineNumber string `env:"LINE_NUMBER"`
}

type Sweeper struct {
	Enabled   bool          `env:"ENABLED" envDefault:"true"`
	Interval  time.Duration `env:"INTERVAL" envDefault:"1m"`
	BatchSize int           `env:"BATCH_SIZE" envDefault:"50"`
}

type Environment struct {
	Name string `env:"ENVIRONMENT" envDefault:"development"`
}

type Log struct {
	Level  string `env:"LOG_LEVEL" envDefault:"info"`
	Format string `env:"LOG_FORMAT" envDefault:"json"`
}

type HTTPServer struct {
	Host string `env:"HTTP_HOST" envDefault:"0.0.0.0"`
	Port string `env:"HTTP_PORT" envDefault:"8080"`
}
