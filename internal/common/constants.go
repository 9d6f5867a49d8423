package common

// Prediction variants
const (
	VariantStrength     = "strength"
	VariantPermeability = "permeability"
)

// Environment variable keys
const (
	EnvConfigFile            = "CONFIG_FILE"
	EnvListenAddr            = "LISTEN_ADDR"
	EnvLogLevel              = "LOG_LEVEL"
	EnvLogFormat             = "LOG_FORMAT"
	EnvRegistryPath          = "REGISTRY_PATH"
	EnvStrengthModelPath     = "STRENGTH_MODEL_PATH"
	EnvStrengthScalerPath    = "STRENGTH_SCALER_PATH"
	EnvStrengthSchemaPath    = "STRENGTH_SCHEMA_PATH"
	EnvPermeabilityModelPath = "PERMEABILITY_MODEL_PATH"
	EnvPermeabilityScaler    = "PERMEABILITY_SCALER_PATH"
	EnvPermeabilitySchema    = "PERMEABILITY_SCHEMA_PATH"
	EnvPlotFormat            = "PLOT_FORMAT"
	EnvPlotWidth             = "PLOT_WIDTH"
	EnvPlotHeight            = "PLOT_HEIGHT"
	EnvContributionThreshold = "CONTRIBUTION_THRESHOLD"
	EnvRequestTimeout        = "REQUEST_TIMEOUT"
)

// Configuration defaults
const (
	DefaultListenAddr            = ":8501"
	DefaultLogLevel              = "info"
	DefaultLogFormat             = "console"
	DefaultStrengthModelPath     = "models/strength/final_catboost_model.json"
	DefaultStrengthScalerPath    = "models/strength/scaler.json"
	DefaultPermeabilityModelPath = "models/permeability/final_catboost_model.json"
	DefaultPermeabilityScaler    = "models/permeability/scaler.json"
	DefaultPlotFormat            = "png"
	DefaultPlotWidth             = 20.0 // centimetres
	DefaultPlotHeight            = 6.0  // centimetres
	DefaultContributionThreshold = 0.0
	DefaultRequestTimeout        = 30 // seconds
)

// Enumerated form selections. The built-in schemas carry the same labels.
const (
	ShapeCylinder          = "Cylinder"
	ShapeCube              = "Cube"
	TestMethodConstantHead = "Constant Head"
	TestMethodFallHead     = "Fall Head"
)
