package extract

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/lastephey/gpu-specter/internal/psf"
)

// footprint is one column of the projection matrix: the detector rect
// a single (fiber, wavelength) coefficient illuminates, with the spot
// pixel data. data aliases the bundle's spot cache.
type footprint struct {
	x0, y0 int
	nx, ny int
	data   []float64
}

// Projection is the sparse linear map from a patch's flux coefficients
// to detector pixels. Only spot footprints are stored; the full design
// matrix is never materialized. Normal-equation products are formed
// directly from footprint overlaps, which keeps the cost proportional
// to the PSF support rather than the patch bounding box.
//
// Coefficients are ordered fiber-major: a = fiber*nwave + wave.
type Projection struct {
	// bounding box on the detector, [XLo,XHi) x [YLo,YHi), clipped to
	// the image
	XLo, XHi int
	YLo, YHi int

	NSpec int // fibers in the patch
	NWave int // padded window width

	foot []footprint
}

// BuildProjection assembles the projection operator for one patch:
// fibers [ispecRel, ispecRel+nspec) of the bundle's spot cache crossed
// with padded-grid bins [iwlo, iwlo+nwave). Deterministic for identical
// inputs. The bounding box is clipped to the image; spots falling
// entirely outside contribute nothing and their coefficients come back
// from the solver with zero flux and zero inverse variance.
func BuildProjection(spots *psf.SpotSet, ispecRel, nspec, iwlo, nwave int, img *Image) (*Projection, error) {
	if ispecRel < 0 || ispecRel+nspec > spots.NSpec {
		return nil, fmt.Errorf("patch fibers [%d:%d) outside bundle cache [0:%d)",
			ispecRel, ispecRel+nspec, spots.NSpec)
	}
	if iwlo < 0 || iwlo+nwave > spots.NWave {
		return nil, fmt.Errorf("patch window [%d:%d) outside padded grid [0:%d)",
			iwlo, iwlo+nwave, spots.NWave)
	}

	p := &Projection{
		XLo:   img.NX,
		XHi:   0,
		YLo:   img.NY,
		YHi:   0,
		NSpec: nspec,
		NWave: nwave,
		foot:  make([]footprint, nspec*nwave),
	}

	for i := 0; i < nspec; i++ {
		for j := 0; j < nwave; j++ {
			x0, y0 := spots.Corner(ispecRel+i, iwlo+j)
			p.foot[i*nwave+j] = footprint{
				x0:   x0,
				y0:   y0,
				nx:   spots.NX,
				ny:   spots.NY,
				data: spots.Spot(ispecRel+i, iwlo+j),
			}
			if x0 < p.XLo {
				p.XLo = x0
			}
			if x0+spots.NX > p.XHi {
				p.XHi = x0 + spots.NX
			}
			if y0 < p.YLo {
				p.YLo = y0
			}
			if y0+spots.NY > p.YHi {
				p.YHi = y0 + spots.NY
			}
		}
	}

	// Clip to the detector. An empty box (patch entirely off-image) is
	// legal; every coefficient is then dead.
	if p.XLo < 0 {
		p.XLo = 0
	}
	if p.YLo < 0 {
		p.YLo = 0
	}
	if p.XHi > img.NX {
		p.XHi = img.NX
	}
	if p.YHi > img.NY {
		p.YHi = img.NY
	}
	if p.XHi < p.XLo {
		p.XHi = p.XLo
	}
	if p.YHi < p.YLo {
		p.YHi = p.YLo
	}

	return p, nil
}

// NCoef returns the number of flux coefficients in the patch.
func (p *Projection) NCoef() int { return p.NSpec * p.NWave }

// clip returns f's rect intersected with the projection bounding box.
func (p *Projection) clip(f *footprint) (xlo, xhi, ylo, yhi int) {
	xlo, xhi = f.x0, f.x0+f.nx
	ylo, yhi = f.y0, f.y0+f.ny
	if xlo < p.XLo {
		xlo = p.XLo
	}
	if xhi > p.XHi {
		xhi = p.XHi
	}
	if ylo < p.YLo {
		ylo = p.YLo
	}
	if yhi > p.YHi {
		yhi = p.YHi
	}
	return xlo, xhi, ylo, yhi
}

// Normal forms the weighted normal-equations system AᵀWA and AᵀWy for
// this patch, where W is the diagonal of image inverse variances and y
// the observed pixels. Coefficients whose footprint carries no weight
// ("dead": masked or off-image) get a unit diagonal and zero right-hand
// side so the system stays positive definite and they decouple cleanly;
// the returned dead mask tells the solver to zero them in the output.
//
// cBack and bBack, when non-nil, are reused as backing storage; they
// must hold n*n and n elements. The batched solver preallocates them
// once per stream.
func (p *Projection) Normal(img *Image, cBack, bBack []float64) (*mat.SymDense, *mat.VecDense, []bool) {
	n := p.NCoef()
	if cBack == nil {
		cBack = make([]float64, n*n)
	} else {
		for i := range cBack[:n*n] {
			cBack[i] = 0
		}
	}
	if bBack == nil {
		bBack = make([]float64, n)
	} else {
		for i := range bBack[:n] {
			bBack[i] = 0
		}
	}
	C := mat.NewSymDense(n, cBack[:n*n])
	b := mat.NewVecDense(n, bBack[:n])

	// Right-hand side and diagonal-adjacent terms. Pairs whose rects do
	// not intersect contribute nothing and are skipped outright.
	for a := 0; a < n; a++ {
		fa := &p.foot[a]
		axlo, axhi, aylo, ayhi := p.clip(fa)
		if axlo >= axhi || aylo >= ayhi {
			continue
		}

		// AᵀWy term for coefficient a.
		var bv float64
		for y := aylo; y < ayhi; y++ {
			srow := (y - fa.y0) * fa.nx
			irow := y * img.NX
			for x := axlo; x < axhi; x++ {
				w := img.Ivar[irow+x]
				if w == 0 {
					continue
				}
				bv += w * img.Pix[irow+x] * fa.data[srow+x-fa.x0]
			}
		}
		b.SetVec(a, bv)

		// Upper-triangle AᵀWA terms.
		for c := a; c < n; c++ {
			fc := &p.foot[c]
			xlo := max(axlo, fc.x0)
			xhi := min(axhi, fc.x0+fc.nx)
			ylo := max(aylo, fc.y0)
			yhi := min(ayhi, fc.y0+fc.ny)
			if xlo >= xhi || ylo >= yhi {
				continue
			}
			var s float64
			for y := ylo; y < yhi; y++ {
				arow := (y - fa.y0) * fa.nx
				crow := (y - fc.y0) * fc.nx
				irow := y * img.NX
				for x := xlo; x < xhi; x++ {
					w := img.Ivar[irow+x]
					if w == 0 {
						continue
					}
					s += w * fa.data[arow+x-fa.x0] * fc.data[crow+x-fc.x0]
				}
			}
			if s != 0 {
				C.SetSym(a, c, s)
			}
		}
	}

	// Decouple dead coefficients.
	dead := make([]bool, n)
	for a := 0; a < n; a++ {
		if C.At(a, a) == 0 {
			dead[a] = true
			C.SetSym(a, a, 1)
			b.SetVec(a, 0)
		}
	}
	return C, b, dead
}

// Chi2 computes the weighted residual statistic for a solved flux
// vector: sum of W*(y - A·f)² over the bounding box, divided by the
// degrees of freedom (weighted pixels minus live coefficients). model,
// when non-nil, is reused as the bounding-box accumulation buffer.
func (p *Projection) Chi2(img *Image, f *mat.VecDense, dead []bool, model []float64) float64 {
	bw := p.XHi - p.XLo
	bh := p.YHi - p.YLo
	if bw <= 0 || bh <= 0 {
		return 0
	}
	if model == nil {
		model = make([]float64, bh*bw)
	} else {
		model = model[:bh*bw]
		for i := range model {
			model[i] = 0
		}
	}

	nlive := 0
	for a := 0; a < p.NCoef(); a++ {
		if dead[a] {
			continue
		}
		nlive++
		fa := &p.foot[a]
		v := f.AtVec(a)
		if v == 0 {
			continue
		}
		xlo, xhi, ylo, yhi := p.clip(fa)
		for y := ylo; y < yhi; y++ {
			srow := (y - fa.y0) * fa.nx
			mrow := (y - p.YLo) * bw
			for x := xlo; x < xhi; x++ {
				model[mrow+x-p.XLo] += v * fa.data[srow+x-fa.x0]
			}
		}
	}

	var chi2 float64
	npix := 0
	for y := p.YLo; y < p.YHi; y++ {
		irow := y * img.NX
		mrow := (y - p.YLo) * bw
		for x := p.XLo; x < p.XHi; x++ {
			w := img.Ivar[irow+x]
			if w == 0 {
				continue
			}
			npix++
			r := img.Pix[irow+x] - model[mrow+x-p.XLo]
			chi2 += w * r * r
		}
	}

	dof := npix - nlive
	if dof < 1 {
		dof = 1
	}
	return chi2 / float64(dof)
}
