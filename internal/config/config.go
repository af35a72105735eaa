package config

import (
	"flag"
	"io/ioutil"
	"os"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v2"
)

// Configuration struct
type Configuration struct {
	LogLevel   string  `yaml:"log_level"`
	SentryDSN  string  `yaml:"sentry_dsn"`
	HTTPListen string  `yaml:"http_listen"`
	Relay      Relay   `yaml:"relay"`
	Wallet     Wallet  `yaml:"wallet"`
	Account    Account `yaml:"account"`
	Sponsor    Sponsor `yaml:"sponsor"`
}

// Relay holds the bridge endpoint the transport client dials.
type Relay struct {
	Bridge    string `yaml:"bridge"`
	ProjectID string `yaml:"project_id"`
}

// Wallet is the metadata this wallet advertises to peers during pairing.
type Wallet struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	URL         string   `yaml:"url"`
	Icons       []string `yaml:"icons"`
	Redirect    Redirect `yaml:"redirect"`
}

type Redirect struct {
	Native    string `yaml:"native"`
	Universal string `yaml:"universal"`
}

// Account is the primary account this wallet signs with.
type Account struct {
	Address    string `yaml:"address"`
	KeyIndex   int    `yaml:"key_index"`
	PrivateKey string `yaml:"private_key"`
	UserID     string `yaml:"user_id"`
	Nickname   string `yaml:"nickname"`
	Avatar     string `yaml:"avatar"`
}

// Sponsor is the fee-payer account used for pre-authorization and
// payer-sponsored transactions.
type Sponsor struct {
	Address    string `yaml:"address"`
	KeyIndex   int    `yaml:"key_index"`
	PrivateKey string `yaml:"private_key"`
}

func readConfig(path string) (Configuration, error) {
	logrus.Info("Starting to load configuration file ...")
	dat, err := ioutil.ReadFile(path)
	if err != nil {
		logrus.Fatal(err)
	}
	t := Configuration{}
	err = yaml.Unmarshal(dat, &t)

	if err != nil {
		if os.IsNotExist(err) {
			logrus.Fatalf("file %s does not exist", path)
		} else {
			logrus.Fatalf("fail to decode config error: %v", err)
		}
	}
	return t, nil
}

var Global *Configuration

// Read reads configuration information from yml.
func Read() {
	configFilePath := flag.String("config-path", "internal/config/config.yml", "The path to the configuration file")
	flag.Parse()
	logrus.Infof("Loading configuration file from %s", *configFilePath)
	globalConfig, err := readConfig(*configFilePath)
	if err != nil {
		logrus.Fatal(err)
	}
	Global = &globalConfig
}
