package model_test

import (
	"math"
	"testing"

	model "github.com/okian/levitate/internal/domain/model"
	"github.com/smartystreets/goconvey/convey"
)

func TestLabelEnums(t *testing.T) {
	convey.Convey("Given the label enumerations", t, func() {
		convey.Convey("Then every declared value is valid", func() {
			for _, e := range []model.Energy{model.EnergyLow, model.EnergyMedium, model.EnergyHigh} {
				convey.So(e.Valid(), convey.ShouldBeTrue)
			}
			for _, m := range []model.Mood{model.MoodWarm, model.MoodTense, model.MoodBright, model.MoodDark} {
				convey.So(m.Valid(), convey.ShouldBeTrue)
			}
		})

		convey.Convey("Then unknown or differently spelled values are not", func() {
			convey.So(model.Energy("extreme").Valid(), convey.ShouldBeFalse)
			convey.So(model.Energy("").Valid(), convey.ShouldBeFalse)
			convey.So(model.Mood("emotional / warm").Valid(), convey.ShouldBeFalse)
		})
	})
}

func TestFeatureVectorFinite(t *testing.T) {
	convey.Convey("Given a feature vector", t, func() {
		fv := model.FeatureVector{Tempo: 120, RMS: 0.05, HarmonicEnergy: 0.02, PercussiveEnergy: 0.01}

		convey.Convey("When all fields are numbers", func() {
			convey.So(fv.Finite(), convey.ShouldBeTrue)
		})

		convey.Convey("When one field is NaN", func() {
			fv.SpectralContrast = math.NaN()
			convey.So(fv.Finite(), convey.ShouldBeFalse)
		})

		convey.Convey("When one field is infinite", func() {
			fv.ZeroCrossingRate = math.Inf(1)
			convey.So(fv.Finite(), convey.ShouldBeFalse)
		})
	})
}

func TestStageTerminal(t *testing.T) {
	convey.Convey("Given pipeline stages", t, func() {
		convey.So(model.StageCompleted.Terminal(), convey.ShouldBeTrue)
		convey.So(model.StageFailed.Terminal(), convey.ShouldBeTrue)
		convey.So(model.StageGenerating.Terminal(), convey.ShouldBeFalse)
		convey.So(model.StageReceived.Terminal(), convey.ShouldBeFalse)
	})
}
