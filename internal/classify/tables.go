package classify

// Built-in lookup tables. Config can replace any of them wholesale; the
// defaults cover the label vocabulary the bundled connectors emit.

var defaultAliases = map[string]string{
	"py":      "Python",
	"js":      "JavaScript",
	"ts":      "TypeScript",
	"golang":  "Go",
	"c#":      "CSharp",
	"c++":     "CPlusPlus",
	"cpp":     "CPlusPlus",
	"jupyter": "JupyterNotebook",
	"pytorch": "PyTorch",
	"tf":      "TensorFlow",
	"gpt":     "OpenAI",
	"gpt-4":   "OpenAI",
	"k8s":     "Kubernetes",
	"pg":      "PostgreSQL",
	"postgres": "PostgreSQL",
	"ga":      "GoogleAnalytics",
}

var defaultTechnologies = map[string]string{
	"Python": "language", "JavaScript": "language", "TypeScript": "language",
	"Go": "language", "Rust": "language", "Java": "language",
	"CSharp": "language", "CPlusPlus": "language", "PHP": "language",
	"Ruby": "language", "Bash": "language", "Shell": "language",
	"SQL": "language", "HTML": "language", "CSS": "language",

	"PyTorch": "framework", "TensorFlow": "framework",
	"FastAPI": "framework", "Flask": "framework", "Django": "framework",
	"React": "framework", "Vue": "framework", "Hugo": "framework",
	"WordPress": "framework",

	"OpenAI": "platform", "GoogleAnalytics": "platform",
	"Snowplow": "platform",

	"AWS": "cloud", "GCP": "cloud", "Azure": "cloud",
	"Docker": "cloud", "Kubernetes": "cloud",

	"MongoDB": "database", "MySQL": "database", "SQLite": "database",
	"PostgreSQL": "database", "BigQuery": "database", "Redis": "database",

	"Git": "tool", "GitHub": "tool", "VSCode": "tool",
	"Tableau": "tool", "JupyterNotebook": "tool",
}

var defaultCapabilities = []string{
	"DataAnalytics", "DataEngineering", "DataVisualization", "Analytics",
	"BusinessIntelligence", "MachineLearning", "GenAI",
	"ArtificialIntelligence", "SEO", "ContentMarketing", "OnlineMarketing",
	"ProjectManagement", "ProductManagement", "ProcessAutomation",
	"Automation", "WebDevelopment", "BackendDevelopment",
	"FrontendDevelopment", "MobileDevelopment", "APIDesign", "DevOps",
	"CloudOps", "DataIntegration", "ETL", "WebScraping", "NLP",
	"ComputerVision", "Consulting", "TechnicalWriting", "Teaching",
}
