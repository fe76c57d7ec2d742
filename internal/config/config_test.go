package config_test

import (
	"os"
	"path/filepath"
	"sort"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/spf13/cobra"

	"github.com/rcliao/memtier/internal/config"
)

var _ = Describe("Configer", func() {
	var tmpDir string

	BeforeEach(func() {
		tmpDir = GinkgoT().TempDir()
	})

	Describe("LoadConfig", func() {
		It("returns defaults when no config file exists", func() {
			c, err := config.NewConfiger(tmpDir)
			Expect(err).NotTo(HaveOccurred())

			cfg, err := c.LoadConfig()
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg).To(Equal(config.NewDefaultConfig()))
			Expect(cfg.Lifecycle.RetentionDays).To(Equal(90))
			Expect(cfg.Lifecycle.CacheSizeThresholdMB).To(Equal(5.0))
			Expect(cfg.Index.Enabled).To(BeTrue())
		})

		It("keeps defaults for keys the file leaves out", func() {
			data := `version = 0

[lifecycle]
retention_days = 30

[index]
enabled = false
`
			Expect(os.WriteFile(filepath.Join(tmpDir, "config.toml"), []byte(data), 0o600)).To(Succeed())

			c, err := config.NewConfiger(tmpDir)
			Expect(err).NotTo(HaveOccurred())
			cfg, err := c.LoadConfig()
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg.Lifecycle.RetentionDays).To(Equal(30))
			Expect(cfg.Lifecycle.CacheSizeThresholdMB).To(Equal(5.0))
			Expect(cfg.Index.Enabled).To(BeFalse())
		})

		It("rejects malformed TOML", func() {
			Expect(os.WriteFile(filepath.Join(tmpDir, "config.toml"), []byte("[lifecycle\n"), 0o600)).To(Succeed())

			c, err := config.NewConfiger(tmpDir)
			Expect(err).NotTo(HaveOccurred())
			_, err = c.LoadConfig()
			Expect(err).To(MatchError(ContainSubstring("parsing config")))
		})
	})

	Describe("SaveConfig", func() {
		It("round-trips through config.toml", func() {
			c, err := config.NewConfiger(tmpDir)
			Expect(err).NotTo(HaveOccurred())

			cfg := config.NewDefaultConfig()
			cfg.Storage.Root = "/srv/memtier"
			cfg.Index.Enabled = false
			cfg.Log.JSON = true
			Expect(c.SaveConfig(cfg)).To(Succeed())

			loaded, err := c.LoadConfig()
			Expect(err).NotTo(HaveOccurred())
			Expect(loaded).To(Equal(cfg))
		})

		It("refuses a nil config", func() {
			c, err := config.NewConfiger(tmpDir)
			Expect(err).NotTo(HaveOccurred())
			Expect(c.SaveConfig(nil)).To(HaveOccurred())
		})
	})

	Describe("Get/SetConfigValue", func() {
		It("sets and reads typed keys", func() {
			c, err := config.NewConfiger(tmpDir)
			Expect(err).NotTo(HaveOccurred())

			Expect(c.SetConfigValue("lifecycle.cache_size_threshold_mb", "12.5")).To(Succeed())
			Expect(c.SetConfigValue("log.debug", "true")).To(Succeed())

			v, err := c.GetConfigValue("lifecycle.cache_size_threshold_mb")
			Expect(err).NotTo(HaveOccurred())
			Expect(v).To(Equal("12.5"))
			v, err = c.GetConfigValue("log.debug")
			Expect(err).NotTo(HaveOccurred())
			Expect(v).To(Equal("true"))
		})

		It("rejects unknown keys and bad values", func() {
			c, err := config.NewConfiger(tmpDir)
			Expect(err).NotTo(HaveOccurred())

			Expect(c.SetConfigValue("nope", "1")).To(MatchError(ContainSubstring("unknown config key")))
			Expect(c.SetConfigValue("lifecycle.retention_days", "soon")).To(HaveOccurred())
			Expect(c.SetConfigValue("lifecycle.retention_days", "0")).To(HaveOccurred())
			Expect(c.SetConfigValue("lifecycle.cache_size_threshold_mb", "-1")).To(HaveOccurred())
			_, err = c.GetConfigValue("nope")
			Expect(err).To(HaveOccurred())
		})
	})

	It("lists every key in sorted order", func() {
		keys := config.ValidConfigKeys()
		Expect(keys).To(ContainElements("storage.root", "lifecycle.retention_days", "index.path", "log.json"))
		Expect(keys).To(HaveLen(7))
		Expect(sort.StringsAreSorted(keys)).To(BeTrue())
		Expect(config.IsValidConfigKey("index.enabled")).To(BeTrue())
		Expect(config.IsValidConfigKey("proxy.listen")).To(BeFalse())
	})
})

var _ = Describe("HomeDir", func() {
	It("uses and creates the override", func() {
		dir := filepath.Join(GinkgoT().TempDir(), "nested", "home")
		got, err := config.HomeDir(dir)
		Expect(err).NotTo(HaveOccurred())
		Expect(got).To(Equal(dir))
		Expect(dir).To(BeADirectory())
	})
})

var _ = Describe("InitViper", func() {
	var home string

	BeforeEach(func() {
		home = GinkgoT().TempDir()
	})

	It("falls back to defaults and resolves the root to home", func() {
		v, err := config.InitViper(home)
		Expect(err).NotTo(HaveOccurred())

		cfg, err := config.FromViper(v, home)
		Expect(err).NotTo(HaveOccurred())
		Expect(cfg.Storage.Root).To(Equal(home))
		Expect(cfg.Lifecycle.RetentionDays).To(Equal(90))
		Expect(cfg.Lifecycle.CacheSizeThresholdMB).To(Equal(5.0))
		Expect(cfg.Index.Enabled).To(BeTrue())
	})

	It("layers flags over env over file", func() {
		data := `[lifecycle]
retention_days = 30
cache_size_threshold_mb = 8.0
`
		Expect(os.WriteFile(filepath.Join(home, "config.toml"), []byte(data), 0o600)).To(Succeed())
		GinkgoT().Setenv("MEMTIER_LIFECYCLE_RETENTION_DAYS", "45")
		GinkgoT().Setenv("MEMTIER_LIFECYCLE_CACHE_SIZE_THRESHOLD_MB", "9")

		cmd := &cobra.Command{Use: "test"}
		var days int
		var mb float64
		config.AddIntFlag(cmd, config.Flags, config.FlagRetentionDays, &days)
		config.AddFloatFlag(cmd, config.Flags, config.FlagThresholdMB, &mb)
		Expect(cmd.ParseFlags([]string{"--threshold-mb", "2.5"})).To(Succeed())

		v, err := config.InitViper(home)
		Expect(err).NotTo(HaveOccurred())
		config.BindRegisteredFlags(v, cmd, config.Flags, []string{config.FlagRetentionDays, config.FlagThresholdMB})

		cfg, err := config.FromViper(v, home)
		Expect(err).NotTo(HaveOccurred())
		Expect(cfg.Lifecycle.RetentionDays).To(Equal(45))
		Expect(cfg.Lifecycle.CacheSizeThresholdMB).To(Equal(2.5))
	})

	It("rejects non-positive lifecycle values", func() {
		GinkgoT().Setenv("MEMTIER_LIFECYCLE_CACHE_SIZE_THRESHOLD_MB", "0")
		v, err := config.InitViper(home)
		Expect(err).NotTo(HaveOccurred())
		_, err = config.FromViper(v, home)
		Expect(err).To(MatchError(ContainSubstring("cache_size_threshold_mb")))
	})
})
