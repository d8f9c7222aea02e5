package transition_test

import (
	"testing"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

func TestTransitionE2E(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "transition/part end-to-end scenarios")
}
