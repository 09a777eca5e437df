package treasury

type Config struct {
	// JWTSecret enables bearer token checks on mutating endpoints when set.
	JWTSecret string
	// Balance backs GET /api/treasury/balance, which answers 404 without it.
	Balance BalanceReader
}

type Server struct {
	engine *Engine
	cfg    Config
}

func NewServer(engine *Engine, cfg Config) Server {
	return Server{
		engine: engine,
		cfg:    cfg,
	}
}
